package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const DefaultPath = "config.yml"

type ServerConfig struct {
	Host           string        `yaml:"host" env:"API_HOST" env-default:"0.0.0.0" env-description:"listen host"`
	Port           int           `yaml:"port" env:"API_PORT" env-default:"5000" env-description:"listen port"`
	Debug          bool          `yaml:"debug" env:"API_DEBUG" env-description:"development logging and per-request timings"`
	ReadTimeout    time.Duration `yaml:"read_timeout" env:"API_READ_TIMEOUT" env-default:"60s"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"API_WRITE_TIMEOUT" env-default:"60s"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes" env:"API_MAX_UPLOAD_BYTES" env-default:"10485760"`
}

func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type ModelConfig struct {
	WeightsPath string `yaml:"weights_path" env:"YOLO_WEIGHTS_PATH" env-default:"yolo_weights.onnx" env-description:"ONNX export of the YOLO weights"`
	LabelsPath  string `yaml:"labels_path" env:"YOLO_LABELS_PATH" env-description:"optional YAML class names, overrides the model metadata"`
	LibraryPath string `yaml:"library_path" env:"ONNXRUNTIME_LIB_PATH" env-description:"onnxruntime shared library"`
	PoolSize    int    `yaml:"pool_size" env:"MODEL_POOL_SIZE" env-default:"4"`
}

type AdvisoryConfig struct {
	Model       string        `yaml:"model" env:"ADVISORY_MODEL" env-default:"llama-v3p1-405b-instruct"`
	Temperature float64       `yaml:"temperature" env:"ADVISORY_TEMPERATURE" env-default:"0"`
	MaxTokens   int           `yaml:"max_tokens" env:"ADVISORY_MAX_TOKENS" env-default:"3000"`
	Timeout     time.Duration `yaml:"timeout" env:"ADVISORY_TIMEOUT" env-default:"60s"`
	BaseURL     string        `yaml:"base_url" env:"FIREWORKS_BASE_URL" env-default:"https://api.fireworks.ai"`
	APIKey      string        `yaml:"-" env:"FIREWORKS_API_KEY" env-description:"Fireworks AI API key"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Model    ModelConfig    `yaml:"model"`
	Advisory AdvisoryConfig `yaml:"advisory"`
}

// Load reads an optional .env file, then the YAML file at path, then the
// environment. A missing file at path is not an error, the environment and
// defaults are used instead.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(".env"); err == nil {
		if err := cleanenv.ReadConfig(".env", cfg); err != nil {
			return nil, fmt.Errorf("read .env: %w", err)
		}
	}

	if path != "" {
		_, err := os.Stat(path)
		switch {
		case err == nil:
			if err := cleanenv.ReadConfig(path, cfg); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
			return cfg, cfg.validate()
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Model.WeightsPath == "" {
		return errors.New("model weights path is empty")
	}
	if c.Advisory.MaxTokens <= 0 {
		return fmt.Errorf("invalid advisory max tokens %d", c.Advisory.MaxTokens)
	}
	return nil
}

// Usage describes every environment variable, for -help output.
func Usage() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return text
}
