package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Brownie44l1/describer/internal/describe"
)

type ClassifierConfig struct {
	ModelPath    string `yaml:"modelPath"`
	MetadataPath string `yaml:"metadataPath"`
}

type GeneratorConfig struct {
	ModelPath         string  `yaml:"modelPath"`
	InputIDsName      string  `yaml:"inputIDsName"`
	AttentionMaskName string  `yaml:"attentionMaskName"`
	PositionIDsName   string  `yaml:"positionIDsName"`
	LogitsName        string  `yaml:"logitsName"`
	VocabSize         int     `yaml:"vocabSize"`
	Encoding          string  `yaml:"encoding"`
	NumBeams          int     `yaml:"numBeams"`
	NoRepeatNgramSize int     `yaml:"noRepeatNgramSize"`
	LengthPenalty     float64 `yaml:"lengthPenalty"`
}

type Config struct {
	Port            string `yaml:"port"`
	LogLevel        string `yaml:"logLevel"`
	OnnxLibraryPath string `yaml:"onnxLibraryPath"`
	MaxUploadMB     int    `yaml:"maxUploadMB"`
	// RequestTimeout bounds each API call. Zero means no limit.
	RequestTimeout time.Duration    `yaml:"requestTimeout"`
	Classifier     ClassifierConfig `yaml:"classifier"`
	Generator      GeneratorConfig  `yaml:"generator"`
}

func Default() Config {
	beam := describe.DefaultGeneratorOptions()
	return Config{
		Port:        "8080",
		LogLevel:    "info",
		MaxUploadMB: 10,
		Classifier: ClassifierConfig{
			ModelPath:    "models/mobilenet_v2.onnx",
			MetadataPath: "models/mobilenet_v2.json",
		},
		Generator: GeneratorConfig{
			ModelPath:         "models/gpt2.onnx",
			InputIDsName:      "input_ids",
			AttentionMaskName: "attention_mask",
			PositionIDsName:   "position_ids",
			LogitsName:        "logits",
			VocabSize:         50257,
			Encoding:          "r50k_base",
			NumBeams:          beam.NumBeams,
			NoRepeatNgramSize: beam.NoRepeatNgramSize,
			LengthPenalty:     beam.LengthPenalty,
		},
	}
}

// Load reads the YAML file at path on top of the defaults, then applies environment
// overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", cfg.LogLevel))
	cfg.OnnxLibraryPath = getEnv("ONNXRUNTIME_LIB", cfg.OnnxLibraryPath)
	cfg.Classifier.ModelPath = getEnv("CLASSIFIER_MODEL", cfg.Classifier.ModelPath)
	cfg.Classifier.MetadataPath = getEnv("CLASSIFIER_METADATA", cfg.Classifier.MetadataPath)
	cfg.Generator.ModelPath = getEnv("GENERATOR_MODEL", cfg.Generator.ModelPath)
	cfg.MaxUploadMB = getEnvInt("MAX_UPLOAD_MB", cfg.MaxUploadMB)
	if seconds := getEnvInt("REQUEST_TIMEOUT_SECONDS", -1); seconds >= 0 {
		cfg.RequestTimeout = time.Duration(seconds) * time.Second
	}

	if cfg.MaxUploadMB < 1 {
		cfg.MaxUploadMB = 1
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.Classifier.ModelPath == "":
		return errors.New("classifier.modelPath is required")
	case c.Classifier.MetadataPath == "":
		return errors.New("classifier.metadataPath is required")
	case c.Generator.ModelPath == "":
		return errors.New("generator.modelPath is required")
	case c.Generator.VocabSize <= 0:
		return fmt.Errorf("generator.vocabSize must be positive, got %d", c.Generator.VocabSize)
	case c.Generator.NumBeams < 1:
		return fmt.Errorf("generator.numBeams must be at least 1, got %d", c.Generator.NumBeams)
	case c.Generator.NoRepeatNgramSize < 0:
		return fmt.Errorf("generator.noRepeatNgramSize must not be negative, got %d", c.Generator.NoRepeatNgramSize)
	case c.Generator.LengthPenalty == 0:
		return errors.New("generator.lengthPenalty must not be zero")
	case c.RequestTimeout < 0:
		return fmt.Errorf("requestTimeout must not be negative, got %s", c.RequestTimeout)
	}
	return nil
}

// GeneratorOptions returns the beam search settings for describe.NewGenerator.
func (g GeneratorConfig) GeneratorOptions() describe.GeneratorOptions {
	return describe.GeneratorOptions{
		NumBeams:          g.NumBeams,
		NoRepeatNgramSize: g.NoRepeatNgramSize,
		LengthPenalty:     g.LengthPenalty,
	}
}

func (c Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
