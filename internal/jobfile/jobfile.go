// Package jobfile syncs a declarative YAML jobs file into the job store.
// File-declared jobs are created enabled (a human edited the file), updated
// in place when the file changes, and disabled when removed from the file so
// their run history survives an accidental deletion.
package jobfile

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/logger"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/schedule"
	"github.com/rafael-agilize/claude-telegram-relay-sub000/internal/store"
)

// FileJob is one job declaration in the YAML file.
type FileJob struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"`
	Prompt   string `yaml:"prompt"`
	ChatID   string `yaml:"chat_id,omitempty"`
	Disabled bool   `yaml:"disabled,omitempty"`
}

// File is the top-level YAML document.
type File struct {
	Jobs []FileJob `yaml:"jobs"`
}

// Syncer reconciles the jobs file against the job store. It remembers the
// file's modification time and skips unchanged files, so calling Sync on
// every scheduler tick is cheap.
type Syncer struct {
	path    string
	jobs    store.JobStore
	log     *logger.Logger
	lastMod time.Time
}

// NewSyncer creates a syncer for the given file path. An empty path disables
// syncing entirely.
func NewSyncer(path string, jobs store.JobStore, log *logger.Logger) *Syncer {
	return &Syncer{path: path, jobs: jobs, log: log}
}

// Sync reconciles the file into the store. A missing file is not an error;
// it simply declares zero jobs.
func (s *Syncer) Sync(ctx context.Context) error {
	if s.path == "" {
		return nil
	}

	info, err := os.Stat(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat jobs file: %w", err)
	}
	if !s.lastMod.IsZero() && !info.ModTime().After(s.lastMod) {
		return nil
	}

	declared, err := Load(s.path)
	if err != nil {
		return err
	}

	if err := s.reconcile(ctx, declared); err != nil {
		return err
	}
	s.lastMod = info.ModTime()
	return nil
}

// Load reads and validates the jobs file.
func Load(path string) ([]FileJob, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jobs file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse jobs file: %w", err)
	}

	names := make(map[string]bool)
	for i, j := range f.Jobs {
		if j.Name == "" {
			return nil, fmt.Errorf("jobs[%d]: name is required", i)
		}
		if names[j.Name] {
			return nil, fmt.Errorf("jobs[%d]: duplicate name %q", i, j.Name)
		}
		names[j.Name] = true
		if j.Prompt == "" {
			return nil, fmt.Errorf("job %q: prompt is required", j.Name)
		}
		if _, ok := schedule.Classify(j.Schedule); !ok {
			return nil, fmt.Errorf("job %q: unrecognized schedule %q", j.Name, j.Schedule)
		}
	}
	return f.Jobs, nil
}

func (s *Syncer) reconcile(ctx context.Context, declared []FileJob) error {
	existing, err := s.jobs.ListJobs(ctx, store.JobFilter{Source: store.SourceFile})
	if err != nil {
		return fmt.Errorf("list file jobs: %w", err)
	}
	byName := make(map[string]store.Job, len(existing))
	for _, j := range existing {
		byName[j.Name] = j
	}

	for _, d := range declared {
		schedType, _ := schedule.Classify(d.Schedule)

		current, ok := byName[d.Name]
		if !ok {
			job := store.Job{
				ID:        uuid.NewString(),
				Name:      d.Name,
				Schedule:  d.Schedule,
				Type:      schedType,
				Prompt:    d.Prompt,
				ChatID:    d.ChatID,
				Enabled:   !d.Disabled,
				Source:    store.SourceFile,
				CreatedAt: time.Now().UTC(),
			}
			if err := s.jobs.CreateJob(ctx, job); err != nil {
				return fmt.Errorf("create job %q: %w", d.Name, err)
			}
			s.log.Info("jobs file: created job", logger.Field{Key: "name", Value: d.Name})
			continue
		}
		delete(byName, d.Name)

		updated := current
		updated.Schedule = d.Schedule
		updated.Type = schedType
		updated.Prompt = d.Prompt
		updated.ChatID = d.ChatID
		updated.Enabled = !d.Disabled
		if updated.Schedule != current.Schedule {
			// Force the scheduler to recompute on the next tick.
			updated.NextRunAt = nil
		}
		if updated == current {
			continue
		}
		if err := s.jobs.UpdateJob(ctx, updated); err != nil {
			return fmt.Errorf("update job %q: %w", d.Name, err)
		}
		s.log.Info("jobs file: updated job", logger.Field{Key: "name", Value: d.Name})
	}

	// Whatever is left was removed from the file.
	for name, j := range byName {
		if !j.Enabled {
			continue
		}
		if err := s.jobs.SetJobEnabled(ctx, j.ID, false); err != nil {
			return fmt.Errorf("disable removed job %q: %w", name, err)
		}
		s.log.Info("jobs file: disabled removed job", logger.Field{Key: "name", Value: name})
	}

	return nil
}
