// Package player launches media in an external player process.
package player

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/mbecker/reel/internal/domain"
)

// Launcher plays media by handing the source to an external player
// process. External players expose no control channel, so the handle
// launches once on Play, treats Pause as a no-op (the player window
// owns its own transport), and closes DurationKnown without a send so
// the engine times the story itself.
type Launcher struct {
	command string   // configured player command, empty for system default
	args    []string // additional arguments for the player
	logger  *slog.Logger
}

// NewLauncher creates a Launcher for the configured player command.
func NewLauncher(command string, args []string, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{command: command, args: args, logger: logger}
}

// Initialize resolves the player command for a source. The process is
// not started until Play.
func (l *Launcher) Initialize(_ context.Context, source string) (domain.PlayerHandle, error) {
	if l.command != "" {
		if _, err := exec.LookPath(l.command); err != nil {
			return nil, fmt.Errorf("player command %q not found: %w", l.command, err)
		}
	}
	known := make(chan time.Duration)
	close(known)
	return &processHandle{launcher: l, source: source, known: known}, nil
}

// buildCommand assembles the launch command: the configured player when
// set, the platform opener otherwise.
func (l *Launcher) buildCommand(source string) *exec.Cmd {
	if l.command != "" {
		args := append(append([]string{}, l.args...), source)
		return exec.Command(l.command, args...)
	}
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", source)
	case "windows":
		return exec.Command("cmd", "/c", "start", "", source)
	default:
		return exec.Command("xdg-open", source)
	}
}

// processHandle is one external player process.
type processHandle struct {
	launcher *Launcher
	source   string
	known    chan time.Duration

	mu      sync.Mutex
	cmd     *exec.Cmd
	started bool
}

func (h *processHandle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		// Resume after pause; the window is already up.
		return nil
	}
	cmd := h.launcher.buildCommand(h.source)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launching player: %w", err)
	}
	h.cmd = cmd
	h.started = true
	h.launcher.logger.Info("launched player", "command", cmd.Path, "source", h.source)
	return nil
}

// Pause is a no-op: a spawned player process carries its own transport
// controls and cannot be paused from here.
func (h *processHandle) Pause() error { return nil }

func (h *processHandle) DurationKnown() <-chan time.Duration { return h.known }

// Release kills the player process if it is still running.
func (h *processHandle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cmd == nil || h.cmd.Process == nil {
		return nil
	}
	if err := h.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("stopping player: %w", err)
	}
	go h.cmd.Wait()
	h.cmd = nil
	return nil
}
