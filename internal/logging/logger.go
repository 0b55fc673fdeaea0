// Package logging provides structured logging using bolt.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/felixgeelhaar/bolt/v3"
)

// Config configures the logger.
type Config struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `json:"level" yaml:"level"`

	// Format is the output format (json or console).
	Format string `json:"format" yaml:"format"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "console",
	}
}

// Validate reports unknown levels or formats.
func (c Config) Validate() error {
	if _, ok := levels[strings.ToLower(c.Level)]; !ok {
		return fmt.Errorf("unknown log level %q", c.Level)
	}
	switch strings.ToLower(c.Format) {
	case "json", "console":
		return nil
	default:
		return fmt.Errorf("unknown log format %q", c.Format)
	}
}

var levels = map[string]bolt.Level{
	"trace": bolt.TRACE,
	"debug": bolt.DEBUG,
	"info":  bolt.INFO,
	"warn":  bolt.WARN,
	"error": bolt.ERROR,
}

// parseLevel converts a string level to bolt.Level.
func parseLevel(s string) bolt.Level {
	if level, ok := levels[strings.ToLower(s)]; ok {
		return level
	}
	return bolt.INFO
}

// New builds a logger writing to w. A nil writer means stderr.
func New(config Config, w io.Writer) *bolt.Logger {
	if w == nil {
		w = os.Stderr
	}

	var handler bolt.Handler
	if strings.EqualFold(config.Format, "json") {
		handler = bolt.NewJSONHandler(w)
	} else {
		handler = bolt.NewConsoleHandler(w)
	}

	return bolt.New(handler).SetLevel(parseLevel(config.Level))
}

// Nop returns a logger that discards everything.
func Nop() *bolt.Logger {
	return bolt.New(bolt.NewJSONHandler(io.Discard)).SetLevel(bolt.ERROR)
}
