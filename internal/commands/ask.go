package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"ai-portfolio/internal/chatclient"
)

func newAskCmd(opts *options) *cobra.Command {
	var quick string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask one question and stream the answer",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			if quick != "" {
				if question != "" {
					return errors.New("pass either a question or --quick, not both")
				}
				q, err := lookupQuick(cmd, opts, quick)
				if err != nil {
					return err
				}
				question = q
			}
			if strings.TrimSpace(question) == "" {
				return errors.New("a question is required")
			}

			s, err := newSession(cmd, opts)
			if err != nil {
				return err
			}
			return ask(cmd, opts, s, question)
		},
	}
	cmd.Flags().StringVarP(&quick, "quick", "q", "", "ask a predefined question by key (see 'portfolio questions')")
	cmd.Flags().StringVarP(&opts.conversation, "conversation", "c", "", "continue a server-side conversation")
	return cmd
}

// ask submits one question and streams the reply.
func ask(cmd *cobra.Command, opts *options, s *chatclient.Session, question string) error {
	return stream(cmd, opts, s, func(ctx context.Context) error {
		return s.Submit(ctx, question)
	})
}

func reload(cmd *cobra.Command, opts *options, s *chatclient.Session) error {
	return stream(cmd, opts, s, s.Reload)
}

// stream runs submit while printing the reply as it grows. An interrupt
// stops the reply instead of killing the process.
func stream(cmd *cobra.Command, opts *options, s *chatclient.Session, submit func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigCh:
			s.Stop()
		case <-done:
		}
	}()

	r := newStreamRenderer(cmd.OutOrStdout())
	s.OnUpdate(r.update)
	defer s.OnUpdate(nil)

	err := submit(ctx)
	r.finish()
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(cmd.ErrOrStderr(), errStyle.Render("(stopped)"))
		return nil
	}
	return err
}

func lookupQuick(cmd *cobra.Command, opts *options, key string) (string, error) {
	s, err := newSession(cmd, opts)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	cat, err := s.Questions(ctx)
	if err != nil {
		return "", err
	}
	for _, q := range cat.Questions {
		if strings.EqualFold(q.Key, key) {
			return q.Question, nil
		}
	}
	return "", fmt.Errorf("unknown quick question %q", key)
}
