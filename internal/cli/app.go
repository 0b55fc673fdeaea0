// Package cli provides the command-line interface of the image preprocessor.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/bolt/v3"
	"github.com/spf13/cobra"

	imagepreprocessor "github.com/menta2k/image-preprocessor"
	"github.com/menta2k/image-preprocessor/internal/config"
	"github.com/menta2k/image-preprocessor/internal/logging"
	"github.com/menta2k/image-preprocessor/internal/utils"
	"github.com/menta2k/image-preprocessor/pkg/client"
	"github.com/menta2k/image-preprocessor/pkg/types"
)

// Version information set at build time.
var (
	Version   = imagepreprocessor.Version
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// globalOptions are the flags shared by every command
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// App represents the CLI application.
type App struct {
	root   *cobra.Command
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	opts   globalOptions
	cfg    *config.Config
	logger *bolt.Logger

	// chatClient replaces backend selection when set
	chatClient client.ChatClient
}

// New creates a new CLI application.
func New() *App {
	app := &App{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	app.root = &cobra.Command{
		Use:   "image-preprocessor",
		Short: "Resize, annotate and batch process image datasets",
		Long: `image-preprocessor prepares image datasets for training.

It resizes images to a fixed size (letterboxed on black by default), draws
labeled bounding boxes and processes whole directories with a worker pool.
The chat command exposes the same operations to an OpenAI, Gemini or Ollama
model that calls them as tools.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup()
		},
	}

	flags := app.root.PersistentFlags()
	flags.StringVarP(&app.opts.configPath, "config", "c", "", "Path to a JSON or YAML configuration file")
	flags.StringVar(&app.opts.logLevel, "log-level", "", "Log level: trace, debug, info, warn or error")
	flags.StringVar(&app.opts.logFormat, "log-format", "", "Log format: console or json")

	app.root.AddCommand(
		app.newVersionCmd(),
		app.newConfigCmd(),
		app.newResizeCmd(),
		app.newAnnotateCmd(),
		app.newBatchCmd(),
		app.newSampleCmd(),
		app.newInspectCmd(),
		app.newChatCmd(),
	)

	return app
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// WithInput sets the reader the chat command reads from.
func (a *App) WithInput(stdin io.Reader) *App {
	a.stdin = stdin
	a.root.SetIn(stdin)
	return a
}

// WithChatClient makes the chat command talk to c instead of a configured backend.
func (a *App) WithChatClient(c client.ChatClient) *App {
	a.chatClient = c
	return a
}

// Execute runs the CLI application.
func (a *App) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.root.ExecuteContext(ctx)
}

// ExecuteWithArgs runs the CLI with specific arguments (useful for testing).
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.Execute(ctx)
}

// setup loads the configuration and builds the logger
func (a *App) setup() error {
	path := a.opts.configPath
	if path == "" && utils.FileExists(config.GetConfigPath()) {
		path = config.GetConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if a.opts.logLevel != "" {
		cfg.Logging.Level = a.opts.logLevel
	}
	if a.opts.logFormat != "" {
		cfg.Logging.Format = a.opts.logFormat
	}
	if err := cfg.Logging.Validate(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}

	a.cfg = cfg
	a.logger = logging.New(cfg.Logging, a.stderr)
	a.logger.Debug().Str("config", path).Msg("configuration loaded")
	return nil
}

func (a *App) preprocessor() *imagepreprocessor.Preprocessor {
	return imagepreprocessor.NewWithOptions(a.cfg.ProcessingOptions(), a.cfg.BatchOptions(), a.logger)
}

// writeJSON prints v as indented JSON
func (a *App) writeJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(a.stdout, string(data))
	return err
}

func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "image-preprocessor version %s\n", Version)
			fmt.Fprintf(a.stdout, "  Git commit: %s\n", GitCommit)
			fmt.Fprintf(a.stdout, "  Build date: %s\n", BuildDate)
		},
	}
}

func (a *App) newConfigCmd() *cobra.Command {
	var (
		asJSON bool
		save   string
	)
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration after applying the config file, .env and the
environment. API keys are never printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if save != "" {
				if err := a.cfg.SaveToFile(save); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "configuration written to %s\n", save)
				return nil
			}
			data, err := a.cfg.Marshal(!asJSON)
			if err != nil {
				return err
			}
			_, err = a.stdout.Write(data)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of YAML")
	cmd.Flags().StringVar(&save, "save", "", "Write the configuration to a file instead (format by extension)")
	return cmd
}
