package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/claude"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/constants"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/intent"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/logger"
)

// sessionScopeInteractive is the session store scope for one-shot runs, so
// consecutive runs share a conversation.
const sessionScopeInteractive = "interactive"

var (
	runConfigPath string
	runChatID     string
	runFresh      bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <prompt>",
	Short: "Run a single interactive prompt through the agent",
	Long: `Send one prompt to the agent, apply the directive gate under the
interactive context, and print the cleaned response. The session continues
across runs unless --fresh is given. With --chat the response is also
delivered to that chat.`,
	Args: cobra.MinimumNArgs(1),
	Run:  runHandler,
}

func runHandler(cmd *cobra.Command, args []string) {
	a, err := newApp(runConfigPath, "", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()
	prompt := strings.Join(args, " ")

	var token string
	if !runFresh {
		token, err = a.store.LoadSession(ctx, sessionScopeInteractive)
		if err != nil {
			a.log.Warn("session load failed, starting fresh",
				logger.Field{Key: "error", Value: err.Error()},
			)
		}
	}

	res, err := a.invoker.Invoke(ctx, claude.Request{Prompt: prompt, ResumeToken: token})
	if err != nil {
		if errors.Is(err, claude.ErrInactivityTimeout) {
			if res != nil && res.SessionID != "" {
				if saveErr := a.store.SaveSession(ctx, sessionScopeInteractive, res.SessionID); saveErr != nil {
					a.log.Error("session save failed", saveErr)
				}
			}
			fmt.Println(constants.MsgAgentStuck)
		} else {
			a.log.Error("invocation failed", err)
			fmt.Println(constants.MsgAgentFailed)
		}
		os.Exit(1)
	}

	if res.SessionID != "" {
		if err := a.store.SaveSession(ctx, sessionScopeInteractive, res.SessionID); err != nil {
			a.log.Error("session save failed", err)
		}
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		text = constants.MsgNoResponse
	}

	destination := runChatID
	if destination == "" {
		destination = a.cfg.Telegram.DefaultChatID
	}
	out := a.gate.Process(ctx, text, intent.ContextInteractive, destination)

	if out.CleanedText != "" {
		fmt.Println(out.CleanedText)
	}
	if runChatID != "" && out.CleanedText != "" {
		if err := a.sender.Send(ctx, runChatID, out.CleanedText); err != nil {
			a.log.Error("delivery failed", err)
		}
	}
}

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "Path to configuration file (default: ./config.toml)")
	runCmd.Flags().StringVar(&runChatID, "chat", "", "Also deliver the response to this chat ID")
	runCmd.Flags().BoolVar(&runFresh, "fresh", false, "Start a fresh session instead of resuming")
}
