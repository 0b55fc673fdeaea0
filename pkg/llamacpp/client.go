// Package llamacpp connects to a llama.cpp server through its OpenAI compatible
// chat completions endpoint. Tool calling needs the server started with --jinja.
package llamacpp

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/openai/openai-go/option"

	"github.com/menta2k/image-preprocessor/pkg/openai"
)

const (
	// DefaultURL is where llama-server listens by default
	DefaultURL = "http://localhost:8080"
	// DefaultModel is sent as the model name; the server answers with whatever it loaded.
	DefaultModel = "local-model"
	// placeholderKey satisfies the SDK, the server does not check it unless started with --api-key
	placeholderKey = "sk-no-key-required"
	defaultTimeout = 5 * time.Minute
)

// Config configures the llama.cpp backend
type Config struct {
	URL     string
	Model   string
	APIKey  string
	Timeout time.Duration
}

// NewClient creates a chat client for the llama.cpp server at cfg.URL
func NewClient(cfg Config, opts ...option.RequestOption) (*openai.Client, error) {
	serverURL := cfg.URL
	if serverURL == "" {
		serverURL = DefaultURL
	}
	parsed, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid URL: %q needs a scheme and host", serverURL)
	}

	// Accept both http://host:8080 and http://host:8080/v1
	base := strings.TrimSuffix(strings.TrimSuffix(parsed.String(), "/"), "/v1") + "/v1/"

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	key := cfg.APIKey
	if key == "" {
		key = placeholderKey
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	reqOpts := append([]option.RequestOption{option.WithRequestTimeout(timeout)}, opts...)
	return openai.NewClient(openai.Config{APIKey: key, Model: model, BaseURL: base}, reqOpts...), nil
}
