package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/menta2k/image-preprocessor/internal/logging"
	"github.com/menta2k/image-preprocessor/pkg/batch"
	"github.com/menta2k/image-preprocessor/pkg/processing"
	"github.com/menta2k/image-preprocessor/pkg/types"
)

// Config holds the application configuration
type Config struct {
	Image      ImageConfig      `json:"image" yaml:"image"`
	Output     OutputConfig     `json:"output" yaml:"output"`
	Annotation AnnotationConfig `json:"annotation" yaml:"annotation"`
	Batch      BatchConfig      `json:"batch" yaml:"batch"`
	Agent      AgentConfig      `json:"agent" yaml:"agent"`
	Logging    logging.Config   `json:"logging" yaml:"logging"`
}

// ImageConfig holds target size settings and accepted formats
type ImageConfig struct {
	DefaultSize         types.Dimensions `json:"default_size" yaml:"default_size"`
	MaintainAspectRatio bool             `json:"maintain_aspect_ratio" yaml:"maintain_aspect_ratio"`
	MinSize             types.Dimensions `json:"min_size" yaml:"min_size"`
	MaxSize             types.Dimensions `json:"max_size" yaml:"max_size"`
	SupportedFormats    []string         `json:"supported_formats" yaml:"supported_formats"`
}

// OutputConfig holds encoder settings and default directories
type OutputConfig struct {
	JPEGQuality    int    `json:"jpeg_quality" yaml:"jpeg_quality"`
	PNGCompression int    `json:"png_compression" yaml:"png_compression"`
	InputDir       string `json:"input_dir" yaml:"input_dir"`
	OutputDir      string `json:"output_dir" yaml:"output_dir"`
}

// AnnotationConfig holds box drawing settings
type AnnotationConfig struct {
	DefaultColor string   `json:"default_color" yaml:"default_color"`
	BoxWidth     int      `json:"box_width" yaml:"box_width"`
	Palette      []string `json:"palette" yaml:"palette"`
	FontPath     string   `json:"font_path" yaml:"font_path"`
	FontSize     float64  `json:"font_size" yaml:"font_size"`
}

// BatchConfig holds directory processing settings
type BatchConfig struct {
	Size       int `json:"size" yaml:"size"`
	MaxWorkers int `json:"max_workers" yaml:"max_workers"`
}

// AgentConfig holds chat agent settings. API keys only come from the
// environment and are never written out.
type AgentConfig struct {
	Name         string `json:"name" yaml:"name"`
	Version      string `json:"version" yaml:"version"`
	OpenAIModel  string `json:"openai_model" yaml:"openai_model"`
	GeminiModel  string `json:"gemini_model" yaml:"gemini_model"`
	OllamaURL    string `json:"ollama_url" yaml:"ollama_url"`
	OllamaModel  string `json:"ollama_model" yaml:"ollama_model"`
	LlamaCppURL  string `json:"llamacpp_url" yaml:"llamacpp_url"`
	MaxTurns     int    `json:"max_turns" yaml:"max_turns"`
	OpenAIAPIKey string `json:"-" yaml:"-"`
	GeminiAPIKey string `json:"-" yaml:"-"`
}

// Default returns a configuration with default values
func Default() *Config {
	proc := processing.DefaultOptions()
	return &Config{
		Image: ImageConfig{
			DefaultSize:         types.Dimensions{Width: 640, Height: 640},
			MaintainAspectRatio: true,
			MinSize:             proc.MinSize,
			MaxSize:             proc.MaxSize,
			SupportedFormats:    []string{".jpg", ".jpeg", ".png", ".bmp", ".tiff", ".webp"},
		},
		Output: OutputConfig{
			JPEGQuality:    proc.JPEGQuality,
			PNGCompression: proc.PNGCompression,
			InputDir:       "./raw_data",
			OutputDir:      "./processed",
		},
		Annotation: AnnotationConfig{
			DefaultColor: proc.DefaultColor,
			BoxWidth:     proc.BoxWidth,
			Palette:      proc.Palette,
			FontPath:     proc.FontPath,
			FontSize:     proc.FontSize,
		},
		Batch: BatchConfig{
			Size:       100,
			MaxWorkers: 4,
		},
		Agent: AgentConfig{
			Name:        "Image Preprocessing Agent",
			Version:     "1.0.0",
			OpenAIModel: "gpt-4o",
			GeminiModel: "gemini-2.0-flash",
			OllamaURL:   "http://localhost:11434",
			OllamaModel: "llama3.1",
			LlamaCppURL: "http://localhost:8080",
			MaxTurns:    10,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load builds the effective configuration: defaults, then the optional
// file, then a .env file if present, then the process environment.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename != "" {
		var err error
		if cfg, err = LoadFromFile(filename); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: failed to load .env: %v", types.ErrConfiguration, err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a JSON or YAML file over the defaults
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", types.ErrConfiguration, err)
	}

	config := Default()
	if isYAML(filename) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse config file: %v", types.ErrConfiguration, err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON or YAML file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := c.Marshal(isYAML(filename))
	if err != nil {
		return err
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Marshal renders the configuration as YAML or indented JSON
func (c *Config) Marshal(asYAML bool) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if asYAML {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

func isYAML(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".yaml" || ext == ".yml"
}

// ApplyEnv overrides settings from environment variables found through lookup
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	ints := []struct {
		key string
		dst *int
	}{
		{"DEFAULT_WIDTH", &c.Image.DefaultSize.Width},
		{"DEFAULT_HEIGHT", &c.Image.DefaultSize.Height},
		{"BATCH_SIZE", &c.Batch.Size},
		{"MAX_WORKERS", &c.Batch.MaxWorkers},
		{"JPEG_QUALITY", &c.Output.JPEGQuality},
		{"PNG_COMPRESSION", &c.Output.PNGCompression},
		{"DEFAULT_BOX_WIDTH", &c.Annotation.BoxWidth},
	}
	for _, e := range ints {
		v, ok := lookup(e.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s must be an integer, got %q", types.ErrConfiguration, e.key, v)
		}
		*e.dst = n
	}

	strs := []struct {
		key string
		dst *string
	}{
		{"DEFAULT_BOX_COLOR", &c.Annotation.DefaultColor},
		{"FONT_PATH", &c.Annotation.FontPath},
		{"LOG_LEVEL", &c.Logging.Level},
		{"LOG_FORMAT", &c.Logging.Format},
		{"OPENAI_API_KEY", &c.Agent.OpenAIAPIKey},
		{"OPENAI_MODEL", &c.Agent.OpenAIModel},
		{"GEMINI_API_KEY", &c.Agent.GeminiAPIKey},
		{"GEMINI_MODEL", &c.Agent.GeminiModel},
		{"OLLAMA_HOST", &c.Agent.OllamaURL},
		{"OLLAMA_MODEL", &c.Agent.OllamaModel},
		{"LLAMACPP_HOST", &c.Agent.LlamaCppURL},
	}
	for _, e := range strs {
		if v, ok := lookup(e.key); ok && v != "" {
			*e.dst = v
		}
	}

	if v, ok := lookup("FONT_SIZE"); ok && v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%w: FONT_SIZE must be a number, got %q", types.ErrConfiguration, v)
		}
		c.Annotation.FontSize = f
	}

	if v, ok := lookup("MAINTAIN_ASPECT_RATIO"); ok && v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: MAINTAIN_ASPECT_RATIO must be a boolean, got %q", types.ErrConfiguration, v)
		}
		c.Image.MaintainAspectRatio = b
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}
	return nil
}

func (c *Config) validate() error {
	img := c.Image
	if img.MinSize.Width < 1 || img.MinSize.Height < 1 {
		return fmt.Errorf("image.min_size must be positive")
	}
	if img.MaxSize.Width < img.MinSize.Width || img.MaxSize.Height < img.MinSize.Height {
		return fmt.Errorf("image.max_size must not be below image.min_size")
	}
	if img.DefaultSize.Width < img.MinSize.Width || img.DefaultSize.Height < img.MinSize.Height ||
		img.DefaultSize.Width > img.MaxSize.Width || img.DefaultSize.Height > img.MaxSize.Height {
		return fmt.Errorf("image.default_size %s must be within %s and %s", img.DefaultSize, img.MinSize, img.MaxSize)
	}
	if len(img.SupportedFormats) == 0 {
		return fmt.Errorf("image.supported_formats cannot be empty")
	}

	if c.Output.JPEGQuality < 1 || c.Output.JPEGQuality > 100 {
		return fmt.Errorf("output.jpeg_quality must be between 1 and 100")
	}
	if c.Output.PNGCompression < 0 || c.Output.PNGCompression > 9 {
		return fmt.Errorf("output.png_compression must be between 0 and 9")
	}

	if c.Annotation.BoxWidth < 1 {
		return fmt.Errorf("annotation.box_width must be positive")
	}
	if c.Annotation.FontSize <= 0 {
		return fmt.Errorf("annotation.font_size must be positive")
	}
	if len(c.Annotation.Palette) == 0 {
		return fmt.Errorf("annotation.palette cannot be empty")
	}
	for _, name := range c.Annotation.Palette {
		if _, ok := processing.ColorByName(name); !ok {
			return fmt.Errorf("annotation.palette: unknown color %q", name)
		}
	}
	if !contains(c.Annotation.Palette, c.Annotation.DefaultColor) {
		return fmt.Errorf("annotation.default_color %q is not in the palette", c.Annotation.DefaultColor)
	}

	if c.Batch.Size < 1 {
		return fmt.Errorf("batch.size must be positive")
	}
	if c.Batch.MaxWorkers < 1 {
		return fmt.Errorf("batch.max_workers must be positive")
	}

	if c.Agent.MaxTurns < 1 {
		return fmt.Errorf("agent.max_turns must be positive")
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// ProcessingOptions maps the configuration onto image processor options
func (c *Config) ProcessingOptions() processing.Options {
	return processing.Options{
		JPEGQuality:    c.Output.JPEGQuality,
		PNGCompression: c.Output.PNGCompression,
		BoxWidth:       c.Annotation.BoxWidth,
		DefaultColor:   c.Annotation.DefaultColor,
		Palette:        append([]string(nil), c.Annotation.Palette...),
		FontPath:       c.Annotation.FontPath,
		FontSize:       c.Annotation.FontSize,
		MinSize:        c.Image.MinSize,
		MaxSize:        c.Image.MaxSize,
	}
}

// BatchOptions maps the configuration onto batch runner options
func (c *Config) BatchOptions() batch.Options {
	return batch.Options{
		TargetSize:     c.Image.DefaultSize,
		MaintainAspect: c.Image.MaintainAspectRatio,
		Extensions:     append([]string(nil), c.Image.SupportedFormats...),
		MaxWorkers:     c.Batch.MaxWorkers,
		BatchSize:      c.Batch.Size,
	}
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "image-preprocessor", "config.yaml")
}
