// Package config loads daemon configuration from a YAML file with
// environment overrides. The watcher reloads the file on change so
// long-running daemons pick up edits without a restart.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"reins/internal/api"
)

// envPrefix namespaces environment overrides (REINS_LOG_LEVEL and so on).
const envPrefix = "reins"

// Duration parses "30s" style values from both YAML and environment
// variables. yaml.v3 decodes time.Duration as raw nanoseconds, which no
// one wants to write in a config file.
type Duration time.Duration

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalText implements encoding.TextUnmarshaler for envconfig.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Config is the daemon configuration.
type Config struct {
	LogLevel    string            `yaml:"logLevel" envconfig:"LOG_LEVEL"`
	Daemon      DaemonConfig      `yaml:"daemon"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Workspace   WorkspaceConfig   `yaml:"workspace"`
	Stream      StreamConfig      `yaml:"stream"`
}

// DaemonConfig configures the runtime and its transport.
type DaemonConfig struct {
	ListenAddr      string   `yaml:"listenAddr" envconfig:"LISTEN_ADDR"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// CredentialsConfig configures the credential store. The encryption
// secret is never read from the YAML file; it only arrives through the
// environment.
type CredentialsConfig struct {
	StorePath        string `yaml:"storePath" envconfig:"CREDENTIAL_STORE_PATH"`
	EncryptionSecret string `yaml:"-" envconfig:"CREDENTIAL_ENCRYPTION_SECRET"`
}

// WorkspaceConfig configures the per-agent workspace root.
type WorkspaceConfig struct {
	DataRoot string `yaml:"dataRoot" envconfig:"WORKSPACE_DATA_ROOT"`
}

// StreamConfig configures progress streaming.
type StreamConfig struct {
	ProgressInterval Duration `yaml:"progressInterval" envconfig:"PROGRESS_INTERVAL"`
}

// Default returns the built-in configuration.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataDir := filepath.Join(home, ".reins")
	return Config{
		LogLevel: "info",
		Daemon: DaemonConfig{
			ListenAddr:      "localhost:8390",
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Credentials: CredentialsConfig{
			StorePath: filepath.Join(dataDir, "credentials.db"),
		},
		Workspace: WorkspaceConfig{
			DataRoot: filepath.Join(dataDir, "workspaces"),
		},
		Stream: StreamConfig{
			ProgressInterval: Duration(60 * time.Second),
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".reins", "config.yaml")
}

// Load reads the YAML file (when it exists) over the defaults, then
// applies environment overrides. A missing file is not an error; a
// malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults plus environment only.
	case err != nil:
		return Config{}, api.NewOperationError("failed to read config file "+path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, api.NewValidationError("malformed config file %s: %v", path, err)
		}
	}

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, api.NewValidationError("invalid environment override: %v", err)
	}
	return cfg, nil
}
