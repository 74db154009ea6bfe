package cmds

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/agentdesk/frontend/internal/app"
	"github.com/zhouzirui/agentdesk/frontend/internal/client"
	"github.com/zhouzirui/agentdesk/frontend/internal/model/chat"
)

func newAskCommand(opts *rootOptions) *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Send one question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			return opts.openApp(cmd.Context(), func(a *app.App) error {
				if err := a.Chat.Send(cmd.Context(), question); err != nil {
					if msg := a.Chat.Snapshot().Error; msg != "" {
						return errors.New(msg)
					}
					return errors.Wrap(err, "send question")
				}

				snap := a.Chat.Snapshot()
				last := snap.Messages[len(snap.Messages)-1]

				answer := last.Content
				if !plain {
					if rendered, err := glamour.Render(answer, "auto"); err == nil {
						answer = rendered
					}
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, strings.TrimRight(answer, "\n"))
				if tools := chat.UniqueTools(last.Tools); len(tools) > 0 {
					fmt.Fprintf(out, "\nTools used: %s\n", strings.Join(tools, ", "))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "print the answer without markdown rendering")
	return cmd
}

func newHealthCommand(opts *rootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			api := client.New(opts.cfg.Backend.BaseURL, opts.cfg.Backend.Timeout)
			report, err := api.Health(ctx)
			if err != nil {
				return errors.New(client.DisplayMessage(err))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Status:   %s\n", report.Status)
			fmt.Fprintf(out, "Database: %t\n", report.DatabaseConnected)
			fmt.Fprintf(out, "Index:    %t\n", report.PineconeConnected)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "health check timeout")
	return cmd
}
