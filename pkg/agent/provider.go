package agent

import (
	"fmt"
	"strings"

	"github.com/menta2k/image-preprocessor/pkg/types"
)

// Provider names a model backend
type Provider string

const (
	ProviderNone   Provider = ""
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
	ProviderOllama Provider = "ollama"
	// ProviderLlamaCpp is a llama.cpp server speaking the OpenAI protocol
	ProviderLlamaCpp Provider = "llamacpp"
)

// GeminiPlaceholderKey is the sample value shipped in .env templates
const GeminiPlaceholderKey = "your-gemini-api-key-here"

// SetupHelp explains how to configure a backend
const SetupHelp = `No API key configured. Configure one of the following in your environment or .env file:

  OpenAI:  get a key from https://platform.openai.com/api-keys
           OPENAI_API_KEY=sk-...

  Gemini:  get a key from https://aistudio.google.com/app/apikey
           GEMINI_API_KEY=AIzaSy...

  Ollama:  run a local server and pass --backend ollama

  llama.cpp: start llama-server with --jinja and pass --backend llamacpp`

func (p Provider) String() string {
	if p == ProviderNone {
		return "none"
	}
	return string(p)
}

// DetectProvider picks a backend from the available credentials. OpenAI
// wins when both are usable; ProviderNone means neither is.
func DetectProvider(openaiKey, geminiKey string) Provider {
	if strings.HasPrefix(openaiKey, "sk-") {
		return ProviderOpenAI
	}
	if geminiKey != "" && geminiKey != GeminiPlaceholderKey {
		return ProviderGemini
	}
	return ProviderNone
}

// ParseProvider resolves a backend name. "auto" or "" detects from the keys.
// A provider that cannot be used yields a configuration error.
func ParseProvider(name, openaiKey, geminiKey string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		if p := DetectProvider(openaiKey, geminiKey); p != ProviderNone {
			return p, nil
		}
		return ProviderNone, fmt.Errorf("%w: %s", types.ErrConfiguration, SetupHelp)
	case "openai":
		if openaiKey == "" {
			return ProviderNone, fmt.Errorf("%w: OPENAI_API_KEY is not set", types.ErrConfiguration)
		}
		return ProviderOpenAI, nil
	case "gemini":
		if geminiKey == "" || geminiKey == GeminiPlaceholderKey {
			return ProviderNone, fmt.Errorf("%w: GEMINI_API_KEY is not set", types.ErrConfiguration)
		}
		return ProviderGemini, nil
	case "ollama":
		return ProviderOllama, nil
	case "llamacpp", "llama.cpp":
		return ProviderLlamaCpp, nil
	default:
		return ProviderNone, fmt.Errorf("%w: unknown backend %q (use auto, openai, gemini, ollama or llamacpp)", types.ErrConfiguration, name)
	}
}
