// Package launcher starts the application under test so playback can be
// scoped to its process.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrLaunchFailed wraps every strategy error when nothing could be started.
var ErrLaunchFailed = errors.New("launch failed")

// Result describes a started application. PID is zero when the process was
// started through a broker that does not expose the target's id.
type Result struct {
	Target  string `json:"target"`
	PID     uint32 `json:"pid"`
	Method  string `json:"method"`
	Message string `json:"message"`
}

// strategy tries one way of starting target.
type strategy struct {
	name  string
	start func(target string, args []string) (uint32, error)
}

type Launcher struct {
	logger     *slog.Logger
	strategies []strategy
}

func New(logger *slog.Logger) *Launcher {
	l := &Launcher{logger: logger}
	l.strategies = append([]strategy{{name: "exec", start: l.startDirect}}, platformStrategies(l)...)
	return l
}

// Launch starts target, an executable path or name on PATH, trying each
// strategy in order. The started process outlives ctx.
func (l *Launcher) Launch(ctx context.Context, target string, args []string) (Result, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return Result{}, fmt.Errorf("%w: empty target", ErrLaunchFailed)
	}
	var errs []error
	for _, s := range l.strategies {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		pid, err := s.start(target, args)
		if err != nil {
			l.logger.Debug("launch strategy failed", "target", target, "method", s.name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			continue
		}
		res := Result{Target: target, PID: pid, Method: s.name, Message: fmt.Sprintf("started %s", target)}
		if pid != 0 {
			res.Message = fmt.Sprintf("started %s (pid %d)", target, pid)
		}
		l.logger.Info("application launched", "target", target, "method", s.name, "pid", pid)
		return res, nil
	}
	return Result{}, fmt.Errorf("%w: %s: %w", ErrLaunchFailed, target, errors.Join(errs...))
}

func (l *Launcher) startDirect(target string, args []string) (uint32, error) {
	cmd := exec.Command(target, args...)
	cmd.Dir = workingDir(target)
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := uint32(cmd.Process.Pid)
	go func() {
		err := cmd.Wait()
		l.logger.Debug("launched application exited", "target", target, "pid", pid, "err", err)
	}()
	return pid, nil
}

// workingDir is the executable's directory when target is a file path.
func workingDir(target string) string {
	if info, err := os.Stat(target); err == nil && !info.IsDir() {
		if abs, err := filepath.Abs(target); err == nil {
			return filepath.Dir(abs)
		}
	}
	return ""
}
