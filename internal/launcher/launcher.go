// Package launcher starts a real Chrome/Chromium process with remote
// debugging enabled and waits for its DevTools endpoint to come up. Ported
// from browser.py's Browser.start/_launch_chrome/_cleanup_chrome_process:
// binary discovery across common names and fallback paths, a fixed flag set
// (remote debugging port, disable-* flags, optional headless), bounded retry-polling of
// `/json/version`, and fail-fast-with-cleanup if the process dies or the
// endpoint never comes up.
package launcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cdpscope/browseragent/internal/cdperrors"
	"github.com/cdpscope/browseragent/internal/httpdiscover"
)

// chromeNames are tried in order via exec.LookPath, mirroring
// browser.py's shutil.which loop.
var chromeNames = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"chrome",
}

// fallbackPaths are checked when none of chromeNames resolve on PATH.
var fallbackPaths = []string{
	"/usr/bin/google-chrome",
	"/usr/bin/chromium-browser",
	"/usr/bin/chromium",
	"/snap/bin/chromium",
	"/opt/google/chrome/chrome",
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	"/Applications/Chromium.app/Contents/MacOS/Chromium",
}

// Config controls how Chrome is launched.
type Config struct {
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	Host           string
	Port           int
	UserDataDir    string // empty means a fresh random temp dir is used
	RetryAttempts  int
	RetryInterval  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 9222
	}
	if c.ViewportWidth == 0 {
		c.ViewportWidth = 1280
	}
	if c.ViewportHeight == 0 {
		c.ViewportHeight = 720
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 10
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = 500 * time.Millisecond
	}
	if c.UserDataDir == "" {
		c.UserDataDir = filepath.Join(os.TempDir(), fmt.Sprintf("browseragent-chrome-%s", uuid.NewString()[:8]))
	}
	return c
}

// Process is a launched Chrome instance plus its discovered endpoint.
type Process struct {
	cmd   *exec.Cmd
	WsURL string
}

// Launch starts Chrome and blocks until its DevTools endpoint answers, or
// returns an error after killing the half-started process.
func Launch(ctx context.Context, cfg Config, logger *zap.Logger) (*Process, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	binary, err := resolveBinary()
	if err != nil {
		return nil, err
	}

	args := buildArgs(binary, cfg)
	cmd := exec.CommandContext(context.Background(), binary, args[1:]...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return nil, cdperrors.Wrap(cdperrors.KindConnection, "starting chrome process", err)
	}
	logger.Info("launcher: started chrome", zap.Int("pid", cmd.Process.Pid), zap.String("binary", binary))

	discover := httpdiscover.New(logger)
	var wsURL string
	for attempt := 0; attempt < cfg.RetryAttempts; attempt++ {
		if cmd.ProcessState != nil && cmd.ProcessState.Exited() {
			return nil, cdperrors.New(cdperrors.KindConnection, fmt.Sprintf("chrome process exited unexpectedly with code %d", cmd.ProcessState.ExitCode()))
		}

		select {
		case <-ctx.Done():
			killProcess(cmd, logger)
			return nil, cdperrors.Wrap(cdperrors.KindTimeout, "waiting for chrome to become ready", ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}

		url, err := discover.BrowserWebSocketURL(ctx, cfg.Host, cfg.Port)
		if err == nil {
			wsURL = url
			break
		}
		if attempt == cfg.RetryAttempts-1 {
			killProcess(cmd, logger)
			return nil, cdperrors.Wrap(cdperrors.KindConnection, "chrome failed to become ready", err)
		}
	}

	return &Process{cmd: cmd, WsURL: wsURL}, nil
}

// Stop terminates the Chrome process, escalating to kill if it doesn't
// exit within the grace period — mirrors _cleanup_chrome_process's
// terminate-then-kill discipline.
func (p *Process) Stop() {
	if p == nil || p.cmd == nil || p.cmd.Process == nil {
		return
	}
	killProcess(p.cmd, zap.NewNop())
}

func killProcess(cmd *exec.Cmd, logger *zap.Logger) {
	if cmd.Process == nil {
		return
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	_ = cmd.Process.Signal(os.Interrupt)
	select {
	case <-done:
		return
	case <-time.After(5 * time.Second):
	}

	logger.Warn("launcher: chrome did not exit after terminate, killing", zap.Int("pid", cmd.Process.Pid))
	_ = cmd.Process.Kill()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
}

func resolveBinary() (string, error) {
	for _, name := range chromeNames {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	for _, path := range fallbackPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", cdperrors.New(cdperrors.KindConnection, "chrome/chromium not found; install chrome or chromium")
}

func buildArgs(binary string, cfg Config) []string {
	args := []string{
		binary,
		fmt.Sprintf("--remote-debugging-port=%d", cfg.Port),
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-extensions",
		"--disable-background-timer-throttling",
		"--disable-renderer-backgrounding",
		"--disable-backgrounding-occluded-windows",
		fmt.Sprintf("--user-data-dir=%s", cfg.UserDataDir),
		fmt.Sprintf("--window-size=%d,%d", cfg.ViewportWidth, cfg.ViewportHeight),
		"about:blank",
	}
	if cfg.Headless {
		args = append(args, "--headless=new", "--disable-gpu")
	}
	return args
}
