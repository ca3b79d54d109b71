// Package cli provides document submission and watch commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/docforge/docforge/internal/api"
	"github.com/docforge/docforge/internal/config"
	"github.com/docforge/docforge/internal/events"
	"github.com/docforge/docforge/internal/models"
	"github.com/docforge/docforge/internal/notify"
	"github.com/docforge/docforge/internal/poller"
	"github.com/docforge/docforge/internal/progress"
	"github.com/docforge/docforge/internal/registry"
	"github.com/docforge/docforge/internal/upload"
)

// newConvertCmd creates the 'convert' command.
func newConvertCmd() *cobra.Command {
	var (
		subject       string
		aiProvider    string
		aiAPIKey      string
		aiModel       string
		maxConcurrent int
		pollInterval  time.Duration
		noWatch       bool
		outputDir     string
	)

	cmd := &cobra.Command{
		Use:   "convert <file>...",
		Short: "Submit documents for conversion and watch their progress",
		Long: `Submit one or more documents for conversion.

The task type is chosen from the file extension:
  .ppt, .pptx        PDF conversion
  .doc, .docx, .pdf  Markdown conversion

Unsupported files are rejected locally and do not stop sibling files.
After submission the command polls the server until every task reaches a
terminal status, unless --no-watch is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("subject") {
				settings.Subject = subject
			}
			if cmd.Flags().Changed("max-concurrent") {
				if err := settings.Set("max_concurrent", fmt.Sprint(maxConcurrent)); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("poll-interval") {
				if err := settings.Set("poll_interval", pollInterval.String()); err != nil {
					return err
				}
			}
			if aiProvider != "" {
				settings.AIProvider = aiProvider
			}
			if aiAPIKey != "" {
				settings.AIAPIKey = aiAPIKey
			}
			if aiModel != "" {
				settings.AIModel = aiModel
			}

			return runConvert(GetContext(), settings, args, noWatch, outputDir)
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Subject hint forwarded to AI conversions")
	cmd.Flags().StringVar(&aiProvider, "ai-provider", "", "AI provider for Markdown conversions (overrides config)")
	cmd.Flags().StringVar(&aiAPIKey, "ai-api-key", "", "AI provider API key (overrides config)")
	cmd.Flags().StringVar(&aiModel, "ai-model", "", "AI model name (overrides config)")
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 0, "Maximum parallel uploads (1-32)")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 0, "Status poll interval (e.g. 3s)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Submit and exit without waiting for results")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Download finished artifacts into this directory")

	return cmd
}

func runConvert(ctx context.Context, settings *config.Settings, paths []string, noWatch bool, outputDir string) error {
	client, err := newAPIClient(settings)
	if err != nil {
		return err
	}

	reg := registry.New()
	bus := events.NewBus(0)
	defer bus.Close()

	controller := upload.NewController(client, reg, bus, GetLogger())
	ui := progress.NewUploadUI(len(paths))

	reqs := make([]upload.SubmitRequest, len(paths))
	bars := make(map[string]*progress.FileBar, len(paths))
	for i, path := range paths {
		// Bars exist only for files that will actually transfer;
		// pre-flight rejections report through the batch result.
		if taskType, err := models.ClassifyTaskType(path); err == nil {
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				bars[path] = ui.AddFileBar(path, taskType, info.Size())
			}
		}

		req := upload.SubmitRequest{
			Path:    path,
			Subject: settings.Subject,
			AI:      aiSettings(settings),
		}
		if bar := bars[path]; bar != nil {
			req.Progress = bar.UpdateProgress
		}
		reqs[i] = req
	}

	results := controller.SubmitBatch(ctx, reqs, settings.MaxConcurrent)

	submitted := 0
	for _, result := range results {
		var taskID string
		if result.Job != nil {
			taskID, _ = result.Job.Wait()
		}
		if result.Err == nil {
			submitted++
		}
		if bar := bars[result.Path]; bar != nil {
			bar.Complete(taskID, result.Err)
		} else if result.Err != nil {
			fmt.Fprintf(ui.Writer(), "✗ %s: %v\n", result.Path, result.Err)
		}
	}
	ui.Wait()

	if submitted == 0 {
		return fmt.Errorf("no files were accepted (%d rejected)", len(paths))
	}

	if noWatch {
		for task := range reg.List() {
			fmt.Printf("%s\tpending\n", task.ID)
		}
		fmt.Printf("\n%d task(s) submitted. Check them later with: docforge status <task-id>\n", submitted)
		return nil
	}

	return watchTasks(ctx, settings, client, reg, bus, outputDir)
}

// watchTasks polls until every registered task reaches a terminal status,
// printing transitions and optionally downloading finished artifacts.
func watchTasks(ctx context.Context, settings *config.Settings, client *api.Client, reg *registry.Registry, bus *events.Bus, outputDir string) error {
	stateCh := bus.Subscribe(events.EventTaskState)

	notifier := notify.NewNotifier(&notify.Config{Enabled: settings.Notifications}, GetLogger())

	scheduler, err := poller.New(poller.Config{
		Registry: reg,
		Fetcher:  client,
		Emitter:  notifier,
		Bus:      bus,
		Logger:   GetLogger(),
		Interval: settings.PollInterval,
	})
	if err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Close()

	fmt.Printf("\nWatching %d task(s), polling every %s. Press Ctrl+C to stop.\n",
		reg.Len(), settings.PollInterval)

	err = waitForCompletion(ctx, reg, stateCh, settings.PollInterval, func(state *events.TaskStateEvent) {
		printTransition(state)
		if state.To == models.StatusSuccess && outputDir != "" {
			if err := downloadArtifact(ctx, client, state.Task, outputDir); err != nil {
				fmt.Fprintf(os.Stderr, "download failed for task %s: %v\n", state.Task.ID, err)
			}
		}
	})
	if err != nil {
		fmt.Println("\nWatch cancelled. Tasks keep running on the server.")
		return err
	}

	printSummary(reg)
	return nil
}

// waitForCompletion blocks until every registered task is terminal. The
// registry is re-checked on a timer as well as on state events, so the
// loop still terminates if a terminal event is dropped by a full
// subscriber buffer.
func waitForCompletion(ctx context.Context, reg *registry.Registry, stateCh <-chan events.Event, recheck time.Duration, onTransition func(*events.TaskStateEvent)) error {
	ticker := time.NewTicker(recheck)
	defer ticker.Stop()

	for len(reg.NonTerminal()) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// loop condition re-evaluated against the registry
		case ev, ok := <-stateCh:
			if !ok {
				return nil
			}
			if state, isState := ev.(*events.TaskStateEvent); isState {
				onTransition(state)
			}
		}
	}
	return nil
}

func printTransition(state *events.TaskStateEvent) {
	task := state.Task
	switch state.To {
	case models.StatusSuccess:
		fmt.Printf("✓ task %s succeeded", task.ID)
		if task.Result != nil && task.Result.SourceFilename != "" {
			fmt.Printf(" (%s)", task.Result.SourceFilename)
		}
		fmt.Println()
		if task.Result != nil {
			for _, warning := range task.Result.Warnings {
				fmt.Printf("  warning: %s\n", warning)
			}
		}
	case models.StatusFailed:
		reason := "unknown error"
		if task.Result != nil && task.Result.ErrorMessage != "" {
			reason = task.Result.ErrorMessage
		}
		fmt.Printf("✗ task %s failed: %s\n", task.ID, reason)
	default:
		fmt.Printf("  task %s is now %s\n", task.ID, state.To)
	}
}

func printSummary(reg *registry.Registry) {
	succeeded, failed := 0, 0
	for task := range reg.List() {
		switch task.Status {
		case models.StatusSuccess:
			succeeded++
		case models.StatusFailed:
			failed++
		}
	}
	fmt.Printf("\nDone: %d succeeded, %d failed.\n", succeeded, failed)
}

// aiSettings builds the optional AI provider fields from config. The API
// client only forwards them for AI-capable task types.
func aiSettings(settings *config.Settings) *api.AISettings {
	if settings.AIProvider == "" && settings.AIAPIKey == "" && settings.AIModel == "" {
		return nil
	}
	return &api.AISettings{
		Provider: settings.AIProvider,
		APIKey:   settings.AIAPIKey,
		Model:    settings.AIModel,
	}
}
