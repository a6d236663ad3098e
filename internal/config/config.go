package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/constants"
)

// Load reads configuration from a TOML file, applies defaults and expands
// environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	expandEnvVars(&cfg)

	return &cfg, nil
}

// applyDefaults fills in zero-valued fields.
func applyDefaults(c *Config) {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}

	if c.Agent.Binary == "" {
		c.Agent.Binary = constants.DefaultAgentBinary
	}
	if c.Agent.InactivityTimeoutMinutes == 0 {
		c.Agent.InactivityTimeoutMinutes = int(constants.DefaultInactivityTimeout / time.Minute)
	}
	if c.Agent.MaxOutputBytes == 0 {
		c.Agent.MaxOutputBytes = constants.DefaultMaxOutputBytes
	}

	if c.Heartbeat.IntervalMinutes == 0 {
		c.Heartbeat.IntervalMinutes = int(constants.DefaultHeartbeatInterval / time.Minute)
	}
	if c.Heartbeat.Timezone == "" {
		c.Heartbeat.Timezone = "UTC"
	}

	if c.Cron.TickSeconds == 0 {
		c.Cron.TickSeconds = int(constants.DefaultCronTickInterval / time.Second)
	}

	if c.Intent.RememberCap == 0 {
		c.Intent.RememberCap = constants.DefaultRememberCap
	}
	if c.Intent.GoalCap == 0 {
		c.Intent.GoalCap = constants.DefaultGoalCap
	}
	if c.Intent.ForgetCap == 0 {
		c.Intent.ForgetCap = constants.DefaultForgetCap
	}
	if c.Intent.CronCap == 0 {
		c.Intent.CronCap = constants.DefaultCronCap
	}
	if c.Intent.MaxFacts == 0 {
		c.Intent.MaxFacts = constants.DefaultMaxFacts
	}
	if c.Intent.MaxGoals == 0 {
		c.Intent.MaxGoals = constants.DefaultMaxGoals
	}
	if c.Intent.ForgetMinLength == 0 {
		c.Intent.ForgetMinLength = constants.ForgetMinLength
	}

	if c.Store.TimeoutSeconds == 0 {
		c.Store.TimeoutSeconds = 10
	}
}

// expandEnvVars expands ${VAR} and ${VAR:default} references plus leading ~
// in the fields that commonly carry them.
func expandEnvVars(c *Config) {
	c.Telegram.Token = expandEnv(c.Telegram.Token)
	c.Store.APIKey = expandEnv(c.Store.APIKey)
	c.Store.BaseURL = expandEnv(c.Store.BaseURL)
	c.Agent.WorkDir = expandHome(expandEnv(c.Agent.WorkDir))
	c.Cron.JobsFile = expandHome(expandEnv(c.Cron.JobsFile))
	c.Logging.Output = expandHome(c.Logging.Output)
}

// expandEnv expands a ${VAR:default} reference.
func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") {
		return s
	}

	end := strings.Index(s, "}")
	if end == -1 {
		return s
	}

	content := s[2:end]
	if parts := strings.SplitN(content, ":", 2); len(parts) == 2 {
		if val := os.Getenv(parts[0]); val != "" {
			return val
		}
		return parts[1]
	}

	return os.Getenv(content)
}

// expandHome expands a leading ~ in a path.
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
