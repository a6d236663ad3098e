package config

// Config is the root configuration structure loaded from TOML.
type Config struct {
	Logging   LoggingConfig   `toml:"logging"`
	Agent     AgentConfig     `toml:"agent"`
	Heartbeat HeartbeatConfig `toml:"heartbeat"`
	Cron      CronConfig      `toml:"cron"`
	Intent    IntentConfig    `toml:"intent"`
	Store     StoreConfig     `toml:"store"`
	Telegram  TelegramConfig  `toml:"telegram"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // json, text
	Output string `toml:"output"` // stdout, stderr, or file path
}

// AgentConfig configures the external CLI agent invocation.
type AgentConfig struct {
	Binary                   string   `toml:"binary"`                     // agent executable name or path
	Args                     []string `toml:"args"`                       // extra arguments appended to every invocation
	WorkDir                  string   `toml:"work_dir"`                   // working directory for the subprocess
	InactivityTimeoutMinutes int      `toml:"inactivity_timeout_minutes"` // kill after this long without a parsed event
	MaxOutputBytes           int      `toml:"max_output_bytes"`           // accumulated stream ceiling
}

// HeartbeatConfig configures the heartbeat loop.
type HeartbeatConfig struct {
	Enabled          bool   `toml:"enabled"`
	IntervalMinutes  int    `toml:"interval_minutes"`
	ActiveHoursStart string `toml:"active_hours_start"` // "HH:MM", inclusive
	ActiveHoursEnd   string `toml:"active_hours_end"`   // "HH:MM", exclusive; may wrap past midnight
	Timezone         string `toml:"timezone"`           // IANA name, e.g. "Europe/Lisbon"
	ChatID           string `toml:"chat_id"`            // delivery destination for heartbeat messages
}

// CronConfig configures the cron loop.
type CronConfig struct {
	TickSeconds int    `toml:"tick_seconds"`
	JobsFile    string `toml:"jobs_file"` // optional declarative jobs file, synced each cron tick
}

// IntentConfig configures the intent gate policy.
type IntentConfig struct {
	RememberCap     int `toml:"remember_cap"`
	GoalCap         int `toml:"goal_cap"`
	ForgetCap       int `toml:"forget_cap"`
	CronCap         int `toml:"cron_cap"`
	MaxFacts        int `toml:"max_facts"`
	MaxGoals        int `toml:"max_goals"`
	ForgetMinLength int `toml:"forget_min_length"`
}

// StoreConfig configures the remote CRUD store client.
type StoreConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// TelegramConfig configures the Telegram delivery channel.
type TelegramConfig struct {
	Enabled       bool   `toml:"enabled"`
	Token         string `toml:"token"`
	DefaultChatID string `toml:"default_chat_id"`
}
