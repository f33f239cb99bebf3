package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	yaml "go.yaml.in/yaml/v3"
)

const (
	defaultBufferSize = 256
	maxBufferSize     = 64 * 1024
	defaultWSPath     = "/ws"
	configEnv         = "BROADCAT_CONFIG"
)

// errHelp is returned by parseArgs when usage was requested.
var errHelp = errors.New("help requested")

// Config is the complete runtime configuration of the relay.
type Config struct {
	// Port is the TCP port (number or service name) to listen on.
	Port string `yaml:"port"`

	// Command is the optional child command and its arguments. Its
	// output is broadcast while at least one client is connected.
	Command []string `yaml:"command"`

	// BufferSize bounds one read from the console or the child. A read
	// yields at most BufferSize-1 bytes.
	BufferSize int `yaml:"buffer_size"`

	// WriteTimeout bounds a single write to one client. Zero disables it.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	WebSocket websocketConfig `yaml:"websocket"`
	Log       logConfig       `yaml:"log"`

	// path is the config file the values were loaded from, if any.
	path string
}

type websocketConfig struct {
	// Listen is the HTTP address for websocket clients. Empty disables it.
	Listen string `yaml:"listen"`
	Path   string `yaml:"path"`
}

func defaultConfig() Config {
	return Config{
		BufferSize: defaultBufferSize,
		WebSocket:  websocketConfig{Path: defaultWSPath},
		Log:        logConfig{Level: "info", Format: "console"},
	}
}

// loadConfigFile decodes a YAML config file over cfg. Unknown keys are
// rejected.
func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.path = path
	return nil
}

// parseArgs builds the configuration from defaults, the optional config
// file, flags and positional arguments, in increasing precedence.
func parseArgs(args []string, getenv func(string) string, stderr io.Writer) (Config, error) {
	cfg := defaultConfig()

	fs := pflag.NewFlagSet("broadcat", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}

	configPath := fs.StringP("config", "c", "", "path to YAML config file (env "+configEnv+")")
	bufferSize := fs.Int("buffer-size", defaultBufferSize, "bytes per console/child read, including the terminator slot")
	writeTimeout := fs.Duration("write-timeout", 0, "per-client write deadline (0 = none)")
	wsListen := fs.String("ws-listen", "", "HTTP address for websocket clients, e.g. :8080")
	wsPath := fs.String("ws-path", defaultWSPath, "HTTP path for websocket upgrades")
	logLevel := fs.String("log-level", "info", "log level: trace, debug, info, warn, error")
	logFormat := fs.String("log-format", "console", "log format: console or json")
	logFile := fs.String("log-file", "", "append JSON log records to this file")
	help := fs.BoolP("help", "h", false, "show help")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printUsage(stderr, fs)
			return cfg, errHelp
		}
		printUsage(stderr, fs)
		return cfg, withExitCode(exitUsage, err)
	}
	if *help {
		printUsage(stderr, fs)
		return cfg, errHelp
	}

	path := *configPath
	if path == "" && getenv != nil {
		path = getenv(configEnv)
	}
	if path != "" {
		if err := loadConfigFile(path, &cfg); err != nil {
			return cfg, withExitCode(exitUsage, err)
		}
	}

	if fs.Changed("buffer-size") {
		cfg.BufferSize = *bufferSize
	}
	if fs.Changed("write-timeout") {
		cfg.WriteTimeout = *writeTimeout
	}
	if fs.Changed("ws-listen") {
		cfg.WebSocket.Listen = *wsListen
	}
	if fs.Changed("ws-path") {
		cfg.WebSocket.Path = *wsPath
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = *logLevel
	}
	if fs.Changed("log-format") {
		cfg.Log.Format = *logFormat
	}
	if fs.Changed("log-file") {
		cfg.Log.File = *logFile
	}

	rest := fs.Args()
	if len(rest) > 0 {
		cfg.Port = rest[0]
	}
	if len(rest) > 1 {
		cfg.Command = append([]string(nil), rest[1:]...)
	}

	if cfg.Port == "" {
		printUsage(stderr, fs)
		return cfg, exitErrorf(exitUsage, "port is required")
	}
	if err := cfg.validate(); err != nil {
		return cfg, withExitCode(exitUsage, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Port) == "" {
		return errors.New("port must not be empty")
	}
	if c.BufferSize < 2 || c.BufferSize > maxBufferSize {
		return fmt.Errorf("buffer_size must be between 2 and %d, got %d", maxBufferSize, c.BufferSize)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("write_timeout must not be negative, got %s", c.WriteTimeout)
	}
	if c.WebSocket.Listen != "" && !strings.HasPrefix(c.WebSocket.Path, "/") {
		return fmt.Errorf("websocket.path must start with /, got %q", c.WebSocket.Path)
	}
	if !validLevel(c.Log.Level) {
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	switch strings.ToLower(strings.TrimSpace(c.Log.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if len(c.Command) > 0 && strings.TrimSpace(c.Command[0]) == "" {
		return errors.New("command name must not be empty")
	}
	return nil
}

func printUsage(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintf(w, `broadcat relays lines from its standard input, or from the output of a
command, to every connected TCP client. A command only runs while at least
one client is connected.

Usage:
  broadcat [flags] port [command [args...]]

Flags:
%s`, fs.FlagUsages())
}
