package cmds

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/agentdesk/frontend/internal/app"
	"github.com/zhouzirui/agentdesk/frontend/internal/view/tui"
)

func newTUICommand(opts *rootOptions) *cobra.Command {
	var (
		plain   bool
		logFile string
	)

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the terminal chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			closer, err := opts.quietLogs(logFile)
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx := cmd.Context()
			return opts.openApp(ctx, func(a *app.App) error {
				events, err := a.Bus.Subscribe(ctx, 32)
				if err != nil {
					return errors.Wrap(err, "subscribe to session events")
				}

				modelOpts := []tui.Option{tui.WithBackend(a.Config.Backend.BaseURL)}
				if plain {
					modelOpts = append(modelOpts, tui.WithPlainText())
				}
				model := tui.New(ctx, a.Auth, a.Chat, events, modelOpts...)

				_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
				if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
					return errors.Wrap(err, "run terminal view")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "show answers without markdown rendering")
	cmd.Flags().StringVar(&logFile, "log-file", "", "write logs to this file while the view runs")
	return cmd
}
