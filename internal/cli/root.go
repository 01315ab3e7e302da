// Package cli implements the cocode command line client.
package cli

import (
	"bufio"
	"errors"
	"os"

	"github.com/huangang/cocode/internal/client"
	"github.com/huangang/cocode/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8080"

type app struct {
	server   string
	logLevel string

	creds *Credentials
	api   *client.API
	in    *bufio.Reader
}

// NewRootCommand builds the cocode command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "cocode",
		Short:         "Collaborate on projects with your team and an AI assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.server, "server", "", "server base URL (env COCODE_SERVER)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level")

	root.AddCommand(
		a.registerCommand(),
		a.loginCommand(),
		a.logoutCommand(),
		a.whoamiCommand(),
		a.usersCommand(),
		a.projectsCommand(),
		a.createCommand(),
		a.addUserCommand(),
		a.treeCommand(),
		a.aiCommand(),
		a.chatCommand(),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	logger.Init(a.logLevel, true)
	logger.SetOutput(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: "15:04:05"})

	creds, err := LoadCredentials()
	if err != nil {
		return err
	}
	a.creds = creds

	server := a.server
	if server == "" {
		server = os.Getenv("COCODE_SERVER")
	}
	if server == "" {
		server = creds.Server
	}
	if server == "" {
		server = defaultServer
	}
	a.api = client.NewAPI(server)

	token := os.Getenv("COCODE_TOKEN")
	if token == "" && creds.Server == a.api.BaseURL() {
		token = creds.Token
	}
	a.api.SetToken(token)

	a.in = bufio.NewReader(cmd.InOrStdin())
	return nil
}

func (a *app) requireLogin() error {
	if a.api.Token() == "" {
		return errors.New("not logged in: run `cocode login` first")
	}
	return nil
}
