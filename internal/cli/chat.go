package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/menta2k/image-preprocessor/internal/logging"
	"github.com/menta2k/image-preprocessor/pkg/agent"
	"github.com/menta2k/image-preprocessor/pkg/client"
	"github.com/menta2k/image-preprocessor/pkg/gemini"
	"github.com/menta2k/image-preprocessor/pkg/llamacpp"
	"github.com/menta2k/image-preprocessor/pkg/ollama"
	"github.com/menta2k/image-preprocessor/pkg/openai"
	"github.com/menta2k/image-preprocessor/pkg/types"
)

// chatOptions holds options for the chat command
type chatOptions struct {
	backend string
	model   string
	message string
}

var exitWords = map[string]bool{"quit": true, "exit": true, "bye": true}

func (a *App) newChatCmd() *cobra.Command {
	opts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the preprocessing agent",
		Long: `Start an interactive session with a model that can resize, annotate and
batch process images by calling tools.

The backend is picked from the available credentials unless --backend is set:
OPENAI_API_KEY (sk-...) selects OpenAI, otherwise GEMINI_API_KEY selects Gemini.
Ollama and llama.cpp need no key. Type quit, exit or bye to leave.

Examples:
  image-preprocessor chat
  image-preprocessor chat --backend ollama --model qwen2.5
  image-preprocessor chat -m "Resize ./raw_data/cat.jpg to 320x320 into ./out/cat.jpg"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.backend, "backend", "b", "auto", "Model backend: auto, openai, gemini, ollama or llamacpp")
	cmd.Flags().StringVar(&opts.model, "model", "", "Model name (default from config)")
	cmd.Flags().StringVarP(&opts.message, "message", "m", "", "Send a single message and exit")
	return cmd
}

func (a *App) runChat(ctx context.Context, opts *chatOptions) error {
	c, provider, err := a.newChatClient(ctx, opts)
	if err != nil {
		return err
	}

	tools, err := a.preprocessor().Toolset()
	if err != nil {
		return err
	}
	ag := agent.New(c, tools,
		agent.WithName(a.cfg.Agent.Name),
		agent.WithMaxTurns(a.cfg.Agent.MaxTurns),
		agent.WithLogger(a.logger),
	)
	logging.With(a.logger.Info(), logging.Provider(provider.String())).Str("agent", ag.Name).Msg("chat started")

	if opts.message != "" {
		reply, err := ag.Send(ctx, opts.message)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, reply)
		return nil
	}

	fmt.Fprintf(a.stdout, "%s (%s). Type quit, exit or bye to leave.\n", ag.Name, provider)
	scanner := bufio.NewScanner(a.stdin)
	for {
		fmt.Fprint(a.stdout, "You: ")
		if !scanner.Scan() {
			fmt.Fprintln(a.stdout)
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if exitWords[strings.ToLower(input)] {
			fmt.Fprintln(a.stdout, "Goodbye!")
			return nil
		}

		reply, err := ag.Send(ctx, input)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(a.stdout, "Agent error: %v\n", err)
			continue
		}
		fmt.Fprintf(a.stdout, "Agent: %s\n", reply)
	}
}

// newChatClient resolves the backend and builds its client
func (a *App) newChatClient(ctx context.Context, opts *chatOptions) (client.ChatClient, agent.Provider, error) {
	if a.chatClient != nil {
		return a.chatClient, agent.Provider(opts.backend), nil
	}

	ac := a.cfg.Agent
	provider, err := agent.ParseProvider(opts.backend, ac.OpenAIAPIKey, ac.GeminiAPIKey)
	if err != nil {
		return nil, agent.ProviderNone, err
	}

	model := func(def string) string {
		if opts.model != "" {
			return opts.model
		}
		return def
	}

	switch provider {
	case agent.ProviderOpenAI:
		return openai.NewClient(openai.Config{APIKey: ac.OpenAIAPIKey, Model: model(ac.OpenAIModel)}), provider, nil
	case agent.ProviderGemini:
		c, err := gemini.NewClient(ctx, gemini.Config{APIKey: ac.GeminiAPIKey, Model: model(ac.GeminiModel)})
		if err != nil {
			return nil, provider, err
		}
		return c, provider, nil
	case agent.ProviderLlamaCpp:
		c, err := llamacpp.NewClient(llamacpp.Config{URL: ac.LlamaCppURL, Model: model(llamacpp.DefaultModel)})
		if err != nil {
			return nil, provider, err
		}
		return c, provider, nil
	case agent.ProviderOllama:
		c, err := ollama.NewClient(ollama.Config{URL: ac.OllamaURL, Model: model(ac.OllamaModel)})
		if err != nil {
			return nil, provider, err
		}
		return c, provider, nil
	default:
		return nil, provider, fmt.Errorf("%w: %s", types.ErrConfiguration, agent.SetupHelp)
	}
}
