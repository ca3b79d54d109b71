package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/docforge/docforge/internal/models"
)

// UploadUI manages multiple concurrent upload progress bars using mpb.
type UploadUI struct {
	progress   *mpb.Progress
	bars       sync.Map // filepath -> *FileBar
	isTerminal bool
	totalFiles int
	started    int32 // atomic counter for file index (1, 2, 3, ...)
	completed  int32
}

// FileBar represents a single file upload progress bar.
type FileBar struct {
	bar        *mpb.Bar
	ui         *UploadUI
	index      int
	filepath   string
	taskType   models.TaskType
	size       int64
	startTime  time.Time
	lastUpdate time.Time
	lastBytes  int64
}

// NewUploadUI creates a new upload UI for the given number of files.
func NewUploadUI(totalFiles int) *UploadUI {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))

	var p *mpb.Progress
	if isTerminal {
		enableANSIOnWindows(os.Stderr)

		p = mpb.New(
			mpb.WithOutput(os.Stderr),
			mpb.WithRefreshRate(300*time.Millisecond),
			mpb.WithWidth(100),
		)
	} else {
		// Non-TTY: disable progress bars, just use text output
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	return &UploadUI{
		progress:   p,
		isTerminal: isTerminal,
		totalFiles: totalFiles,
	}
}

// AddFileBar creates a new progress bar for a file upload.
func (u *UploadUI) AddFileBar(localPath string, taskType models.TaskType, size int64) *FileBar {
	// Atomic increment to get a unique file index across concurrent uploads
	index := int(atomic.AddInt32(&u.started, 1))

	sourcePath := truncatePath(localPath, 2)

	fb := &FileBar{
		ui:         u,
		index:      index,
		filepath:   localPath,
		taskType:   taskType,
		size:       size,
		startTime:  time.Now(),
		lastUpdate: time.Now(),
	}

	if u.isTerminal {
		fb.bar = u.progress.New(size,
			mpb.BarStyle().
				Lbound("[").
				Filler("█").
				Tip("█").
				Padding("░").
				Rbound("]"),
			mpb.PrependDecorators(
				decor.Name(fmt.Sprintf("[%d/%d] %s (%.1f MiB) → %s",
					fb.index, u.totalFiles,
					sourcePath,
					float64(size)/(1024*1024),
					taskType), decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
				decor.Name("  "),
				decor.Percentage(decor.WCSyncSpace),
				decor.Name("  "),
				decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 30, decor.WCSyncSpace),
			),
			mpb.BarRemoveOnComplete(),
		)
	} else {
		fmt.Printf("Uploading [%d/%d]: %s (%.1f MiB) → %s\n",
			fb.index, u.totalFiles,
			sourcePath,
			float64(size)/(1024*1024),
			taskType)
	}

	u.bars.Store(localPath, fb)
	return fb
}

// UpdateProgress updates the progress bar based on a fraction (0.0 to 1.0).
// Updates are throttled and fed through EwmaIncrBy so speed stays accurate.
func (f *FileBar) UpdateProgress(fraction float64) {
	if f.bar == nil {
		return
	}

	now := time.Now()
	elapsed := now.Sub(f.lastUpdate)

	currentBytes := int64(fraction * float64(f.size))
	bytesDelta := currentBytes - f.lastBytes

	const updateInterval = 300 * time.Millisecond

	if elapsed >= updateInterval {
		f.bar.EwmaIncrBy(int(bytesDelta), elapsed)
		f.lastBytes = currentBytes
		f.lastUpdate = now
	}
}

// Complete marks the upload as finished and prints a one-line summary.
func (f *FileBar) Complete(taskID string, err error) {
	elapsed := time.Since(f.startTime)

	var msg string
	if err == nil {
		if f.bar != nil {
			// Land exactly on 100% and trigger BarRemoveOnComplete
			f.bar.SetCurrent(f.size)
			f.bar.SetTotal(f.size, true)
		}

		msg = fmt.Sprintf("✓ %s submitted as %s (task %s, %.1f MiB, %s)\n",
			truncatePath(f.filepath, 2),
			f.taskType,
			taskID,
			float64(f.size)/(1024*1024),
			elapsed.Round(time.Second))
	} else {
		if f.bar != nil {
			f.bar.Abort(false) // keep the bar visible to show the failure
		}

		msg = fmt.Sprintf("✗ %s: %v\n", truncatePath(f.filepath, 2), err)
	}

	// Write through mpb's writer to avoid clobbering active bars
	if f.ui.isTerminal && f.ui.progress != nil {
		f.ui.progress.Write([]byte(msg))
	} else {
		fmt.Print(msg)
	}

	atomic.AddInt32(&f.ui.completed, 1)
}

// Wait blocks until all progress bars complete.
func (u *UploadUI) Wait() {
	if u.progress != nil {
		u.progress.Wait()
	}
}

// Writer returns an io.Writer that safely prints above the progress bars.
func (u *UploadUI) Writer() io.Writer {
	if u.progress != nil && u.isTerminal {
		return u.progress
	}
	return os.Stderr
}

// IsTerminal returns true if output is to a terminal (progress bars are active).
func (u *UploadUI) IsTerminal() bool {
	return u.isTerminal
}

// truncatePath truncates a file path to show only the last N components.
// Example: truncatePath("/a/b/c/d/file.txt", 2) → "…/d/file.txt"
func truncatePath(path string, maxComponents int) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= maxComponents {
		return filepath.Base(path)
	}
	relevant := parts[len(parts)-maxComponents:]
	return "…/" + strings.Join(relevant, "/")
}

// enableANSIOnWindows enables Virtual Terminal processing on Windows for
// ANSI escape sequences. No-op elsewhere.
func enableANSIOnWindows(f *os.File) {
	if runtime.GOOS == "windows" {
		enableWindowsANSI(f)
	}
}
