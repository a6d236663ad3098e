package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/constants"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/schedule"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/store"
)

var (
	jobConfigPath string
	jobName       string
	jobSchedule   string
	jobPrompt     string
	jobChatID     string
)

// jobCmd represents the job command
var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Manage scheduled jobs",
	Long: `Create, list and remove scheduled jobs, and approve or reject jobs
the agent has proposed.`,
}

var jobAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a scheduled job",
	Long: `Add an enabled job. The schedule may be a 5-field cron expression
("0 9 * * *"), a repeating interval ("every 2h30m") or a one-shot delay
("in 45m").`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(jobConfigPath)
		ctx := context.Background()

		schedType, ok := schedule.Classify(jobSchedule)
		if !ok {
			fmt.Fprintf(os.Stderr, "Unrecognized schedule %q\n", jobSchedule)
			os.Exit(1)
		}

		job := store.Job{
			ID:        uuid.NewString(),
			Name:      jobName,
			Schedule:  jobSchedule,
			Type:      schedType,
			Prompt:    jobPrompt,
			ChatID:    jobChatID,
			Enabled:   true,
			Source:    store.SourceUser,
			CreatedAt: time.Now().UTC(),
		}
		job.NextRunAt = a.calc.NextRun(job, time.Now())

		if err := a.store.CreateJob(ctx, job); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create job: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created job %s (%s)\n", job.ID, job.Name)
	},
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(jobConfigPath)

		jobs, err := a.store.ListJobs(context.Background(), store.JobFilter{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list jobs: %v\n", err)
			os.Exit(1)
		}
		sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSCHEDULE\tSOURCE\tENABLED\tNEXT RUN")
		for _, job := range jobs {
			nextRun := "-"
			if job.NextRunAt != nil {
				nextRun = job.NextRunAt.In(a.location).Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
				job.ID, job.Name, job.Schedule, job.Source, job.Enabled, nextRun)
		}
		w.Flush()
	},
}

var jobRemoveCmd = &cobra.Command{
	Use:   "remove <job-id>",
	Short: "Remove a job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(jobConfigPath)

		if err := a.store.DeleteJob(context.Background(), args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to remove job: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Removed job %s\n", args[0])
	},
}

var jobApproveCmd = &cobra.Command{
	Use:   "approve <job-id>",
	Short: "Approve an agent-proposed job",
	Long:  `Enable a job the agent proposed and compute its first run time.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(jobConfigPath)

		job, err := a.approvals.Approve(context.Background(), args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Approval failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf(constants.MsgJobApproved+"\n", job.ID)
	},
}

var jobRejectCmd = &cobra.Command{
	Use:   "reject <job-id>",
	Short: "Reject an agent-proposed job",
	Long:  `Delete a job the agent proposed before it ever runs.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(jobConfigPath)

		if err := a.approvals.Reject(context.Background(), args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Rejection failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf(constants.MsgJobRejected+"\n", args[0])
	},
}

func mustApp(configPath string) *app {
	a, err := newApp(configPath, "", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		os.Exit(1)
	}
	return a
}

func init() {
	jobCmd.PersistentFlags().StringVarP(&jobConfigPath, "config", "c", "", "Path to configuration file (default: ./config.toml)")

	jobAddCmd.Flags().StringVar(&jobName, "name", "", "Job name")
	jobAddCmd.Flags().StringVar(&jobSchedule, "schedule", "", "Schedule: cron expression, \"every Nh\", or \"in Nm\"")
	jobAddCmd.Flags().StringVar(&jobPrompt, "prompt", "", "Prompt sent to the agent when the job runs")
	jobAddCmd.Flags().StringVar(&jobChatID, "chat", "", "Chat ID receiving the job output (default: telegram default chat)")
	jobAddCmd.MarkFlagRequired("name")
	jobAddCmd.MarkFlagRequired("schedule")
	jobAddCmd.MarkFlagRequired("prompt")

	jobCmd.AddCommand(jobAddCmd)
	jobCmd.AddCommand(jobListCmd)
	jobCmd.AddCommand(jobRemoveCmd)
	jobCmd.AddCommand(jobApproveCmd)
	jobCmd.AddCommand(jobRejectCmd)
}
