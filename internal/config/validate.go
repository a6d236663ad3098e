package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks the configuration and returns all problems found.
func (c *Config) Validate() []error {
	var errors []error

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errors = append(errors, fmt.Errorf("invalid logging.level: %s (expected: debug, info, warn, error)", c.Logging.Level))
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errors = append(errors, fmt.Errorf("invalid logging.format: %s (expected: json, text)", c.Logging.Format))
	}

	if c.Agent.Binary == "" {
		errors = append(errors, fmt.Errorf("agent.binary is required"))
	}
	if c.Agent.InactivityTimeoutMinutes < 1 {
		errors = append(errors, fmt.Errorf("agent.inactivity_timeout_minutes must be at least 1"))
	}

	if c.Heartbeat.Enabled {
		if c.Heartbeat.ChatID == "" && c.Telegram.DefaultChatID == "" {
			errors = append(errors, fmt.Errorf("heartbeat.chat_id is required when heartbeat is enabled"))
		}
		if _, err := time.LoadLocation(c.Heartbeat.Timezone); err != nil {
			errors = append(errors, fmt.Errorf("invalid heartbeat.timezone: %s", c.Heartbeat.Timezone))
		}
		if err := validateClock(c.Heartbeat.ActiveHoursStart, "heartbeat.active_hours_start"); err != nil {
			errors = append(errors, err)
		}
		if err := validateClock(c.Heartbeat.ActiveHoursEnd, "heartbeat.active_hours_end"); err != nil {
			errors = append(errors, err)
		}
	}

	if c.Store.BaseURL == "" {
		errors = append(errors, fmt.Errorf("store.base_url is required"))
	}

	if c.Telegram.Enabled {
		if c.Telegram.Token == "" {
			errors = append(errors, fmt.Errorf("telegram.token is required when telegram is enabled"))
		} else if err := validateTelegramToken(c.Telegram.Token); err != nil {
			errors = append(errors, err)
		}
	}

	return errors
}

// validateClock checks an optional "HH:MM" value.
func validateClock(value, fieldName string) error {
	if value == "" {
		return nil
	}
	if _, err := time.Parse("15:04", value); err != nil {
		return fmt.Errorf("invalid %s: %s (expected HH:MM)", fieldName, value)
	}
	return nil
}

func validateTelegramToken(token string) error {
	parts := strings.Split(token, ":")
	if len(parts) != 2 {
		return fmt.Errorf("telegram token has invalid format (expected <bot_id>:<token>)")
	}

	botID := parts[0]
	if len(botID) < 3 || len(botID) > 15 {
		return fmt.Errorf("telegram token has invalid bot ID length (expected 3-15 digits, got %d)", len(botID))
	}
	for _, r := range botID {
		if r < '0' || r > '9' {
			return fmt.Errorf("telegram token has invalid bot ID (expected digits only)")
		}
	}

	if len(parts[1]) < 10 {
		return fmt.Errorf("telegram token is too short")
	}

	return nil
}
