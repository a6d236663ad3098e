package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/jobfile"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/logger"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/metrics"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/scheduler"
)

var (
	serveConfigPath  string
	serveLogLevel    string
	serveMetricsAddr string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay loops (main command)",
	Long: `Start the relay with the heartbeat and cron loops running.
This wires the agent invoker, the directive gate, the remote store and the
Telegram channel, and handles graceful shutdown on SIGINT/SIGTERM.`,
	Run: serveHandler,
}

func serveHandler(cmd *cobra.Command, args []string) {
	m := metrics.Init("relay", nil)

	a, err := newApp(serveConfigPath, serveLogLevel, m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		os.Exit(1)
	}
	log := a.log

	log.Info("starting relay",
		logger.Field{Key: "version", Value: Version},
		logger.Field{Key: "git_commit", Value: GitCommit},
		logger.Field{Key: "agent_binary", Value: a.cfg.Agent.Binary},
		logger.Field{Key: "heartbeat_enabled", Value: a.cfg.Heartbeat.Enabled},
	)

	if serveMetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Info("metrics endpoint listening",
				logger.Field{Key: "addr", Value: serveMetricsAddr},
			)
			if err := http.ListenAndServe(serveMetricsAddr, mux); err != nil {
				log.Error("metrics endpoint failed", err)
			}
		}()
	}

	heartbeat := scheduler.NewHeartbeat(scheduler.HeartbeatConfig{
		Enabled:          a.cfg.Heartbeat.Enabled,
		Interval:         time.Duration(a.cfg.Heartbeat.IntervalMinutes) * time.Minute,
		ActiveHoursStart: a.cfg.Heartbeat.ActiveHoursStart,
		ActiveHoursEnd:   a.cfg.Heartbeat.ActiveHoursEnd,
		Location:         a.location,
		ChatID:           a.cfg.Heartbeat.ChatID,
	}, a.invoker, a.gate, a.sender, a.store, a.store, log, m)

	var syncer *jobfile.Syncer
	if a.cfg.Cron.JobsFile != "" {
		syncer = jobfile.NewSyncer(a.cfg.Cron.JobsFile, a.store, log)
	}

	cron := scheduler.NewCron(scheduler.CronConfig{
		TickInterval:  time.Duration(a.cfg.Cron.TickSeconds) * time.Second,
		DefaultChatID: a.cfg.Telegram.DefaultChatID,
	}, a.store, a.calc, a.invoker, a.gate, a.sender, a.store, syncer, log, m)

	heartbeat.Start()
	cron.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	log.Info("shutting down", logger.Field{Key: "signal", Value: sig.String()})
	heartbeat.Stop()
	cron.Stop()
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "Path to configuration file (default: ./config.toml)")
	serveCmd.Flags().StringVarP(&serveLogLevel, "log-level", "l", "", "Override log level (debug, info, warn, error)")
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address (e.g. :9090)")
}
