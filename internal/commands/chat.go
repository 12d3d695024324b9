package commands

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

const chatHelp = "Type a question. /reload asks the last question again, /exit quits."

func newChatCmd(opts *options) *cobra.Command {
	var initial string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSession(cmd, opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, labelStyle.Render("portfolio chat"))
			fmt.Fprintln(out, toolStyle.Render(chatHelp))

			err = stream(cmd, opts, s, func(ctx context.Context) error {
				return s.SubmitInitial(ctx, initial)
			})
			if err != nil {
				printError(cmd, err)
			}

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, labelStyle.Render("> "))
				if !scanner.Scan() {
					fmt.Fprintln(out)
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				switch line {
				case "":
					continue
				case "/exit", "/quit":
					return nil
				case "/reload":
					if err := reload(cmd, opts, s); err != nil {
						printError(cmd, err)
					}
					continue
				}
				if err := ask(cmd, opts, s, line); err != nil {
					printError(cmd, err)
				}
			}
		},
	}
	cmd.Flags().StringVar(&initial, "initial", "", "question to ask before reading input")
	cmd.Flags().StringVarP(&opts.conversation, "conversation", "c", "", "continue a server-side conversation")
	return cmd
}

func printError(cmd *cobra.Command, err error) {
	fmt.Fprintln(cmd.ErrOrStderr(), errStyle.Render("error: "+err.Error()))
}
