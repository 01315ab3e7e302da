package sandbox

import (
	"context"

	"github.com/huangang/cocode/internal/models"
)

// Process is a command running inside a Runtime.
type Process interface {
	// Output yields combined stdout and stderr lines. It is closed when the
	// process exits.
	Output() <-chan string
	// Wait blocks until the process exits and returns its exit error.
	Wait() error
	// Kill stops the process and waits for it to exit.
	Kill() error
}

// Runtime is an isolated place to lay out a file tree and run commands in it.
type Runtime interface {
	Mount(ctx context.Context, tree models.FileTree) error
	Spawn(ctx context.Context, name string, args ...string) (Process, error)
}

// BootFunc constructs a Runtime. It is called at most once per Session on success.
type BootFunc func(ctx context.Context) (Runtime, error)
