package sandbox

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/huangang/cocode/internal/models"
	"github.com/huangang/cocode/pkg/logger"
)

// ErrNotReady is returned when the started app exits or times out before
// printing a URL.
var ErrNotReady = errors.New("app did not report a URL")

var (
	urlPattern  = regexp.MustCompile(`https?://(?:localhost|127\.0\.0\.1|0\.0\.0\.0|\[::1?\])(?::\d+)?[^\s'"]*`)
	portPattern = regexp.MustCompile(`(?i)\b(?:port|listening on)\s*:?\s*(\d{2,5})\b`)
)

// DetectURL extracts the address a dev server announces on one output line.
func DetectURL(line string) (string, bool) {
	if u := urlPattern.FindString(line); u != "" {
		return u, true
	}
	if m := portPattern.FindStringSubmatch(line); m != nil {
		return "http://localhost:" + m[1], true
	}
	return "", false
}

// Session owns one lazily booted Runtime for the lifetime of a client. The
// runtime is booted on the first Run and never torn down; only the app process
// is replaced between runs.
type Session struct {
	boot         BootFunc
	readyTimeout time.Duration

	bootMu sync.Mutex
	rt     Runtime

	runMu   sync.Mutex
	current Process
}

func NewSession(boot BootFunc) *Session {
	return &Session{boot: boot, readyTimeout: 2 * time.Minute}
}

// SetReadyTimeout bounds how long Run waits for the app to announce its URL.
func (s *Session) SetReadyTimeout(d time.Duration) {
	s.readyTimeout = d
}

func (s *Session) runtime(ctx context.Context) (Runtime, error) {
	s.bootMu.Lock()
	defer s.bootMu.Unlock()
	if s.rt != nil {
		return s.rt, nil
	}
	rt, err := s.boot(ctx)
	if err != nil {
		return nil, fmt.Errorf("boot runtime: %w", err)
	}
	logger.Info().Msg("Sandbox runtime booted")
	s.rt = rt
	return rt, nil
}

// Run mounts tree, installs dependencies, replaces the running app with a
// fresh `npm start` and returns the URL it announces.
func (s *Session) Run(ctx context.Context, tree models.FileTree) (string, error) {
	rt, err := s.runtime(ctx)
	if err != nil {
		return "", err
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	if err := rt.Mount(ctx, tree); err != nil {
		return "", fmt.Errorf("mount file tree: %w", err)
	}

	install, err := rt.Spawn(ctx, "npm", "install")
	if err != nil {
		return "", fmt.Errorf("npm install: %w", err)
	}
	for line := range install.Output() {
		logger.Debug().Str("cmd", "npm install").Msg(line)
	}
	if err := install.Wait(); err != nil {
		return "", fmt.Errorf("npm install: %w", err)
	}

	if s.current != nil {
		if err := s.current.Kill(); err != nil {
			logger.Warn().Err(err).Msg("Failed to stop previous app process")
		}
		s.current = nil
	}

	app, err := rt.Spawn(ctx, "npm", "start")
	if err != nil {
		return "", fmt.Errorf("npm start: %w", err)
	}
	s.current = app

	return s.awaitURL(ctx, app)
}

func (s *Session) awaitURL(ctx context.Context, app Process) (string, error) {
	var timeout <-chan time.Time
	if s.readyTimeout > 0 {
		timer := time.NewTimer(s.readyTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	out := app.Output()
	for {
		select {
		case line, ok := <-out:
			if !ok {
				return "", ErrNotReady
			}
			logger.Debug().Str("cmd", "npm start").Msg(line)
			if u, found := DetectURL(line); found {
				go drain(out)
				return u, nil
			}
		case <-timeout:
			go drain(out)
			return "", ErrNotReady
		case <-ctx.Done():
			go drain(out)
			return "", ctx.Err()
		}
	}
}

// Stop kills the running app, if any. The runtime stays booted.
func (s *Session) Stop() error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.current == nil {
		return nil
	}
	err := s.current.Kill()
	s.current = nil
	return err
}

func drain(out <-chan string) {
	for line := range out {
		logger.Debug().Str("cmd", "npm start").Msg(line)
	}
}
