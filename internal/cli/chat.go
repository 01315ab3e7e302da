package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/huangang/cocode/internal/client"
	"github.com/huangang/cocode/internal/models"
	"github.com/huangang/cocode/internal/realtime"
	"github.com/huangang/cocode/internal/sandbox"
	"github.com/spf13/cobra"
)

const chatHelp = `Type a message and press Enter. Mention @ai to ask the assistant.
  /files   list the current file tree
  /run     run the current file tree locally
  /quit    leave the room`

func (a *app) chatCommand() *cobra.Command {
	var run bool
	var dir string
	cmd := &cobra.Command{
		Use:   "chat PROJECT_ID",
		Short: "Join a project's chat room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			return a.chat(cmd, args[0], run, dir)
		},
	}
	cmd.Flags().BoolVar(&run, "run", false, "install and start every file tree the AI sends")
	cmd.Flags().StringVar(&dir, "dir", "", "working directory for --run and /run (default: a temp dir per project)")
	return cmd
}

// syncWriter serialises output from the input loop and the listener.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Printf(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format, args...)
}

func (a *app) chat(cmd *cobra.Command, projectID string, autoRun bool, dir string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	me, err := a.api.Profile(ctx)
	if err != nil {
		return err
	}
	project, err := a.api.Project(ctx, projectID)
	if err != nil {
		return err
	}

	out := &syncWriter{w: cmd.OutOrStdout()}
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "cocode-"+project.ID)
	}
	session := sandbox.NewSession(sandbox.LocalBoot(dir))
	defer func() { _ = session.Stop() }()

	runTree := func(tree models.FileTree) {
		go func() {
			out.Printf("* starting %d file(s) in %s\n", len(tree), dir)
			url, err := session.Run(ctx, tree)
			if err != nil {
				out.Printf("* run failed: %v\n", err)
				return
			}
			out.Printf("* app ready at %s\n", url)
		}()
	}

	var onTree func(models.FileTree)
	if autoRun {
		onTree = runTree
	}
	conv := client.NewConversation(project.FileTree.Data(), onTree)

	ch, err := client.Dial(ctx, a.api.BaseURL(), a.api.Token(), project.ID)
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	out.Printf("Joined %s as %s\n%s\n", project.Name, me.Email, chatHelp)

	listenDone := make(chan error, 1)
	go func() {
		listenDone <- ch.Listen(ctx, func(msg realtime.ChatMessage, decodeErr error) {
			if conv.Receive(msg, decodeErr) {
				printMessage(out, msg)
			}
		})
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(cmd.InOrStdin())
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	self := realtime.Sender{ID: me.ID, Email: me.Email}
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-listenDone:
			if err != nil {
				return fmt.Errorf("connection lost: %w", err)
			}
			out.Printf("* disconnected\n")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			switch line {
			case "":
				continue
			case "/quit", "/exit":
				return nil
			case "/files":
				for _, p := range conv.FileTree().Paths() {
					out.Printf("  %s\n", p)
				}
				continue
			case "/run":
				runTree(conv.FileTree())
				continue
			}

			msg := realtime.NewHumanMessage(uuid.NewString(), self, line)
			conv.AppendOwn(msg)
			if err := ch.Send(msg); err != nil {
				return fmt.Errorf("send message: %w", err)
			}
		}
	}
}

func printMessage(out *syncWriter, msg realtime.ChatMessage) {
	from := msg.From().Email
	out.Printf("[%s] %s\n", from, msg.Body())
	if ai, ok := msg.(realtime.AIMessage); ok && ai.HasFileTree() {
		out.Printf("* file tree updated: %s\n", strings.Join(ai.FileTree.Paths(), ", "))
	}
}
