// Package commands provides the portfolio chat CLI.
package commands

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"ai-portfolio/internal/chatclient"
	"ai-portfolio/internal/telemetry"
)

const defaultServer = "http://localhost:3000"

// Version is set at build time.
var Version = "dev"

type options struct {
	server       string
	conversation string
	timeout      time.Duration
	verbose      bool
}

// NewRootCmd builds the CLI. Output goes to the writers configured on the
// returned command so tests can capture it.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "portfolio",
		Short: "Chat with the AI portfolio from the terminal",
		Long: `portfolio talks to a running portfolio chat server.

Examples:
  portfolio ask "What are your projects?"
  portfolio ask --quick Skills
  portfolio chat
  portfolio info
  portfolio questions`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	server := os.Getenv("PORTFOLIO_SERVER")
	if server == "" {
		server = defaultServer
	}
	root.PersistentFlags().StringVarP(&opts.server, "server", "s", server, "chat server base URL (env PORTFOLIO_SERVER)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "maximum time for one request")
	root.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "log malformed stream lines to stderr")

	root.AddCommand(newAskCmd(opts))
	root.AddCommand(newChatCmd(opts))
	root.AddCommand(newInfoCmd(opts))
	root.AddCommand(newQuestionsCmd(opts))
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		root.PrintErrln("Error:", err)
		return 1
	}
	return 0
}

func newSession(cmd *cobra.Command, opts *options) (*chatclient.Session, error) {
	level := "error"
	if opts.verbose {
		level = "warn"
	}
	// No log file is configured, so the closer has nothing to release.
	logger, _, err := telemetry.NewLogger(telemetry.LogOptions{
		Level:  level,
		Format: "text",
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}

	sessionOpts := []chatclient.Option{chatclient.WithLogger(logger)}
	if opts.conversation != "" {
		sessionOpts = append(sessionOpts, chatclient.WithConversationID(opts.conversation))
	}
	return chatclient.NewSession(opts.server, sessionOpts...)
}
