// Package launch starts external programs without waiting for them.
//
// Both operations are fire-and-forget: a nil error means the process was
// spawned, nothing more. The child is reaped in a background goroutine that
// only logs how it exited.
package launch

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
)

// Launcher spawns applications and opens URLs in the default browser.
type Launcher interface {
	Start(ctx context.Context, command string, args ...string) error
	OpenURL(ctx context.Context, url string) error
}

// Exec launches with os/exec.
type Exec struct {
	// GOOS selects the browser opener. Empty means runtime.GOOS.
	GOOS string
}

func NewExec() *Exec {
	return &Exec{GOOS: runtime.GOOS}
}

// Start spawns command detached from the request. ctx is not attached to
// the child so it outlives the HTTP request that started it.
func (e *Exec) Start(ctx context.Context, command string, args ...string) error {
	cmd := exec.Command(command, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", command, err)
	}
	pid := cmd.Process.Pid
	slog.InfoContext(ctx, "process launched", "command", command, "pid", pid)

	go func() {
		if err := cmd.Wait(); err != nil {
			slog.Debug("launched process exited", "command", command, "pid", pid, "err", err)
			return
		}
		slog.Debug("launched process exited", "command", command, "pid", pid)
	}()
	return nil
}

// OpenURL hands url to the platform's default URL handler.
func (e *Exec) OpenURL(ctx context.Context, url string) error {
	name, args := BrowserCommand(e.goos(), url)
	return e.Start(ctx, name, args...)
}

func (e *Exec) goos() string {
	if e.GOOS == "" {
		return runtime.GOOS
	}
	return e.GOOS
}

// BrowserCommand returns the program and arguments that open url on goos.
func BrowserCommand(goos, url string) (string, []string) {
	switch goos {
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	case "darwin":
		return "open", []string{url}
	default:
		return "xdg-open", []string{url}
	}
}
