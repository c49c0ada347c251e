package advisory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingProvider struct {
	mu      sync.Mutex
	prompts []string
	opts    []Options
	reply   string
	err     error
}

func (p *recordingProvider) Complete(_ context.Context, prompt string, opts Options) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, prompt)
	p.opts = append(p.opts, opts)
	return p.reply, p.err
}

func (p *recordingProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prompts)
}

func newTestGenerator(t *testing.T, p Provider) *Generator {
	t.Helper()
	g, err := NewGenerator(p, DefaultOptions(), zap.NewNop())
	require.NoError(t, err)
	return g
}

func TestBuildPromptEmptyList(t *testing.T) {
	prompt, err := BuildPrompt(nil)
	require.NoError(t, err)
	assert.Contains(t, prompt, `just say "No diseases detected"`)
	assert.Contains(t, prompt, "The detected diseases list: \nYour answer:")
}

func TestBuildPromptJoinsLabels(t *testing.T) {
	prompt, err := BuildPrompt([]string{"Early Blight", "Leaf Mold"})
	require.NoError(t, err)
	assert.Contains(t, prompt, "The detected diseases list: Early Blight, Leaf Mold\n")
	assert.True(t, strings.HasSuffix(prompt, "Your answer:\n"))
}

func TestGenerateResponseEmptyLabels(t *testing.T) {
	p := &recordingProvider{reply: "No diseases detected"}
	g := newTestGenerator(t, p)

	text, err := g.GenerateResponse(context.Background(), []string{}, "llama-v3p1-405b-instruct")
	require.NoError(t, err)
	assert.Equal(t, "No diseases detected", text)

	require.Equal(t, 1, p.calls())
	assert.Contains(t, p.prompts[0], "No diseases detected")
	assert.Equal(t, DefaultOptions(), p.opts[0])
}

func TestGenerateResponseUnknownModel(t *testing.T) {
	p := &recordingProvider{reply: "unused"}
	g := newTestGenerator(t, p)

	_, err := g.GenerateResponse(context.Background(), []string{"Early Blight"}, "gpt-4o")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelNotAvailable))

	var mnaErr *ModelNotAvailableError
	require.True(t, errors.As(err, &mnaErr))
	assert.Equal(t, "gpt-4o", mnaErr.Model)

	assert.Equal(t, 0, p.calls())
	assert.Equal(t, DefaultModel, g.Options().Model)
}

func TestGenerateResponseSwitchesModel(t *testing.T) {
	p := &recordingProvider{reply: "advice"}
	g := newTestGenerator(t, p)

	_, err := g.GenerateResponse(context.Background(), []string{"Septoria"}, "mixtral-8x7b-instruct")
	require.NoError(t, err)
	assert.Equal(t, "mixtral-8x7b-instruct", g.Options().Model)

	// Empty name keeps the model selected last.
	_, err = g.GenerateResponse(context.Background(), []string{"Septoria"}, "")
	require.NoError(t, err)

	require.Equal(t, 2, p.calls())
	assert.Equal(t, "mixtral-8x7b-instruct", p.opts[0].Model)
	assert.Equal(t, "mixtral-8x7b-instruct", p.opts[1].Model)
	assert.Equal(t, 3000, p.opts[1].MaxTokens)
}

func TestGenerateResponseConcurrentSwitches(t *testing.T) {
	p := &recordingProvider{reply: "advice"}
	g := newTestGenerator(t, p)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		model := AvailableModels[i%len(AvailableModels)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.GenerateResponse(context.Background(), []string{"Healthy"}, model)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, p.calls())
	for _, o := range p.opts {
		assert.NoError(t, ValidateModel(o.Model))
	}
}

func TestGenerateResponseProviderError(t *testing.T) {
	p := &recordingProvider{err: errors.New("upstream down")}
	g := newTestGenerator(t, p)

	_, err := g.GenerateResponse(context.Background(), nil, "")
	assert.EqualError(t, err, "upstream down")
}

func TestNewGeneratorValidatesModel(t *testing.T) {
	opts := DefaultOptions()
	opts.Model = "llama-2-7b"
	_, err := NewGenerator(&recordingProvider{}, opts, zap.NewNop())
	assert.ErrorIs(t, err, ErrModelNotAvailable)
}

func TestAvailableModels(t *testing.T) {
	assert.Len(t, AvailableModels, 6)
	for _, m := range AvailableModels {
		assert.NoError(t, ValidateModel(m))
	}
}
