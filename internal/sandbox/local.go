package sandbox

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/huangang/cocode/internal/models"
)

// LocalRuntime runs commands in a directory on the host.
type LocalRuntime struct {
	Dir string
	Env []string
}

// NewLocalRuntime prepares dir, creating it when missing.
func NewLocalRuntime(dir string) (*LocalRuntime, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create sandbox dir: %w", err)
	}
	return &LocalRuntime{Dir: abs}, nil
}

// LocalBoot returns a BootFunc that creates a LocalRuntime in dir.
func LocalBoot(dir string) BootFunc {
	return func(context.Context) (Runtime, error) {
		return NewLocalRuntime(dir)
	}
}

// Mount writes every file of tree under Dir. The whole tree is validated
// before anything is written.
func (r *LocalRuntime) Mount(ctx context.Context, tree models.FileTree) error {
	if err := tree.Validate(); err != nil {
		return err
	}
	paths := tree.Paths()
	targets := make([]string, len(paths))
	for i, p := range paths {
		target := filepath.Join(r.Dir, filepath.FromSlash(p))
		rel, err := filepath.Rel(r.Dir, target)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return fmt.Errorf("path %q escapes the sandbox", p)
		}
		targets[i] = target
	}

	for i, target := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(target, []byte(tree[paths[i]]), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// Spawn starts name in Dir. The process outlives ctx; stop it with Kill.
func (r *LocalRuntime) Spawn(ctx context.Context, name string, args ...string) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cmd := exec.Command(name, args...)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(), r.Env...)
	cmd.WaitDelay = 2 * time.Second
	setProcessGroup(cmd)

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &localProcess{
		cmd:    cmd,
		lines:  make(chan string, 256),
		done:   make(chan struct{}),
		killed: make(chan struct{}),
	}
	go p.scan(pr)
	go func() {
		p.err = cmd.Wait()
		_ = pw.Close()
		close(p.done)
	}()
	return p, nil
}

type localProcess struct {
	cmd      *exec.Cmd
	lines    chan string
	done     chan struct{}
	killed   chan struct{}
	killOnce sync.Once
	err      error
}

func (p *localProcess) scan(r io.Reader) {
	defer close(p.lines)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		select {
		case p.lines <- sc.Text():
		case <-p.killed:
		}
	}
	// unblock the writer if the scanner gave up early
	_, _ = io.Copy(io.Discard, r)
}

func (p *localProcess) Output() <-chan string { return p.lines }

func (p *localProcess) Wait() error {
	<-p.done
	return p.err
}

func (p *localProcess) Kill() error {
	p.killOnce.Do(func() { close(p.killed) })
	err := killProcessGroup(p.cmd)
	<-p.done
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
