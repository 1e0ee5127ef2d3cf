package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the environment-driven configuration surface. Durations accept
// Go syntax ("24h", "90s").
type Config struct {
	// Token authenticates against the Bot API.
	Token string `envconfig:"TELEGRAM_TOKEN" required:"true"`

	// Interpreter is the toplevel invocation, split on whitespace.
	Interpreter string `envconfig:"INTERPRETER" default:"ocaml -noprompt -nopromptcont"`

	// IdleTimeout is how long a session may stay inactive before the
	// reaper reclaims it.
	IdleTimeout time.Duration `envconfig:"IDLE_TIMEOUT" default:"24h"`

	// SweepInterval is the pause between reaper passes.
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"30m"`

	// FlushInterval is the pause between output buffer drains.
	FlushInterval time.Duration `envconfig:"FLUSH_INTERVAL" default:"1s"`

	// HistoryDepth bounds each session's command history ring.
	HistoryDepth int `envconfig:"HISTORY_DEPTH" default:"20"`

	// MonitorAddr, when set, serves the operator console (e.g.
	// "127.0.0.1:8420").
	MonitorAddr string `envconfig:"MONITOR_ADDR"`

	// DenyFile, when set, supplements the sanitizer deny list and is
	// hot-reloaded on change.
	DenyFile string `envconfig:"DENY_FILE"`

	// LogFile redirects logging away from stderr.
	LogFile string `envconfig:"LOG_FILE"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("camlbot", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Command returns the interpreter invocation in argv form.
func (c Config) Command() []string {
	return strings.Fields(c.Interpreter)
}
