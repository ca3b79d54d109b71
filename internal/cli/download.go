package cli

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/docforge/docforge/internal/api"
	"github.com/docforge/docforge/internal/models"
	"github.com/docforge/docforge/internal/progress"
)

// newDownloadCmd creates the 'download' command.
func newDownloadCmd() *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "download <task-id>...",
		Short: "Download the converted output of finished tasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			client, err := newAPIClient(settings)
			if err != nil {
				return err
			}

			ctx := GetContext()
			failures := 0
			for _, taskID := range args {
				task, err := client.GetTaskStatus(ctx, taskID)
				if err == nil {
					err = downloadArtifact(ctx, client, *task, outputDir)
				}
				if err != nil {
					fmt.Fprintf(os.Stderr, "✗ %s: %v\n", taskID, err)
					failures++
				}
			}

			if failures > 0 {
				return fmt.Errorf("%d of %d downloads failed", failures, len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", ".", "Directory to write downloaded artifacts into")

	return cmd
}

// downloadArtifact fetches a finished task's output file into dir.
func downloadArtifact(ctx context.Context, client *api.Client, task models.Task, dir string) error {
	if task.Status != models.StatusSuccess {
		return fmt.Errorf("task is %s, only successful tasks have output", task.Status)
	}
	if task.Result == nil || task.Result.OutputFileURL == "" {
		return fmt.Errorf("task has no output file")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}

	name := artifactName(task)
	dest := filepath.Join(dir, name)

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("cannot create %s: %w", dest, err)
	}
	defer f.Close()

	reporter := progress.NewCLIProgress()
	reporter.Start(-1, "downloading "+name)
	written, err := client.Download(ctx, task.Result.OutputFileURL, &countingWriter{w: f, reporter: reporter})
	reporter.Finish()
	if err != nil {
		os.Remove(dest)
		return err
	}

	fmt.Printf("Saved %s (%d bytes)\n", dest, written)
	return nil
}

// artifactName derives a local filename from the output URL, falling back
// to the task id.
func artifactName(task models.Task) string {
	if u, err := url.Parse(task.Result.OutputFileURL); err == nil {
		if base := path.Base(u.Path); base != "" && base != "." && base != "/" {
			return base
		}
	}
	return task.ID
}

// countingWriter feeds download progress to a Reporter.
type countingWriter struct {
	w        io.Writer
	reporter progress.Reporter
	written  int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.written += int64(n)
	c.reporter.Update(c.written)
	return n, err
}
