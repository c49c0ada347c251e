package advisory

import (
	"strings"

	"github.com/tmc/langchaingo/prompts"
)

var promptTemplate = prompts.PromptTemplate{
	Template: `
You are an expert on tomato leaf diseases and you are purposed to help farmers identify the diseases on their tomato plants.
You will be given with the list of tomato leaves diseases and your task is to provide the description and treatment (or possible preventions) for each of the provided diseases.
If the list of provided diseases is empty, just say "No diseases detected".

The detected diseases list: {detected_diseases}
Your answer:
`,
	InputVariables: []string{"detected_diseases"},
	TemplateFormat: prompts.TemplateFormatFString,
}

// BuildPrompt renders the advisory prompt for the comma-joined labels.
func BuildPrompt(labels []string) (string, error) {
	return promptTemplate.Format(map[string]any{
		"detected_diseases": strings.Join(labels, ", "),
	})
}
