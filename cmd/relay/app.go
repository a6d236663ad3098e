package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/channels"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/channels/telegram"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/claude"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/config"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/intent"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/logger"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/metrics"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/schedule"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/store/rest"
)

// app bundles the wired components every command builds on.
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	store     *rest.Client
	location  *time.Location
	calc      *schedule.Calculator
	invoker   *claude.CLI
	sender    channels.Sender
	approvals *intent.ApprovalFlow
	gate      *intent.Gate
}

// newApp loads configuration and wires the shared component graph.
// logLevel, when non-empty, overrides the configured level. m may be nil
// for commands that do not export metrics.
func newApp(configPath, logLevel string, m *metrics.Metrics) (*app, error) {
	if configPath == "" {
		configPath = defaultConfigPath
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %v", errs[0])
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)

	location, err := time.LoadLocation(cfg.Heartbeat.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Heartbeat.Timezone, err)
	}

	storeClient := rest.New(rest.Config{
		BaseURL: cfg.Store.BaseURL,
		APIKey:  cfg.Store.APIKey,
		Timeout: time.Duration(cfg.Store.TimeoutSeconds) * time.Second,
	}, log)

	var sender channels.Sender
	if cfg.Telegram.Enabled {
		sender, err = telegram.New(cfg.Telegram.Token, cfg.Telegram.DefaultChatID, log)
		if err != nil {
			return nil, err
		}
	} else {
		sender = consoleSender(log)
	}

	calc := schedule.NewCalculator(location)
	approvals := intent.NewApprovalFlow(storeClient, storeClient, calc, sender, log)
	gate := intent.NewGate(intent.Config{
		Caps: intent.Caps{
			Remember:  cfg.Intent.RememberCap,
			Goal:      cfg.Intent.GoalCap,
			Done:      intent.DefaultCaps().Done,
			Milestone: intent.DefaultCaps().Milestone,
			Forget:    cfg.Intent.ForgetCap,
			Cron:      cfg.Intent.CronCap,
		},
		MaxFacts:        cfg.Intent.MaxFacts,
		MaxGoals:        cfg.Intent.MaxGoals,
		ForgetMinLength: cfg.Intent.ForgetMinLength,
	}, storeClient, storeClient, approvals, log, m)

	invoker := claude.NewCLI(claude.Config{
		Binary:            cfg.Agent.Binary,
		ExtraArgs:         cfg.Agent.Args,
		WorkDir:           cfg.Agent.WorkDir,
		InactivityTimeout: time.Duration(cfg.Agent.InactivityTimeoutMinutes) * time.Minute,
		MaxOutputBytes:    int64(cfg.Agent.MaxOutputBytes),
	}, log)

	return &app{
		cfg:       cfg,
		log:       log,
		store:     storeClient,
		location:  location,
		calc:      calc,
		invoker:   invoker,
		sender:    sender,
		approvals: approvals,
		gate:      gate,
	}, nil
}

// consoleSender logs delivery when no chat channel is configured.
func consoleSender(log *logger.Logger) channels.Sender {
	return channels.Func(func(_ context.Context, destination, text string) error {
		log.Info("delivery (no channel configured)",
			logger.Field{Key: "destination", Value: destination},
			logger.Field{Key: "text", Value: text},
		)
		return nil
	})
}
