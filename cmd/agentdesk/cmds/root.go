package cmds

import (
	"context"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/agentdesk/frontend/internal/app"
	"github.com/zhouzirui/agentdesk/frontend/internal/config"
	"github.com/zhouzirui/agentdesk/frontend/internal/logging"
)

type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
	logJSON    bool

	cfg *config.Config
}

// NewRootCommand builds the agentdesk command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "agentdesk",
		Short:         "Frontend for the support agent backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "YAML config file (overrides AGENTDESK_CONFIG)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.BoolVar(&opts.logJSON, "log-json", false, "force JSON log output")

	root.AddCommand(
		newServeCommand(opts),
		newTUICommand(opts),
		newLoginCommand(opts),
		newRegisterCommand(opts),
		newLogoutCommand(opts),
		newAskCommand(opts),
		newHealthCommand(opts),
		newStatusCommand(opts),
	)
	return root
}

func (o *rootOptions) load(cmd *cobra.Command) error {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && cmd.Flags().Changed("env-file") {
			return errors.Wrapf(err, "load env file %s", o.envFile)
		}
	}
	if o.configPath != "" {
		if err := os.Setenv("AGENTDESK_CONFIG", o.configPath); err != nil {
			return errors.Wrap(err, "set config path")
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "load configuration")
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logJSON {
		cfg.Log.JSON = true
	}
	o.cfg = cfg

	logging.Setup(cfg.Log)
	return nil
}

// openApp builds the session and hands it to fn, closing it afterwards.
func (o *rootOptions) openApp(ctx context.Context, fn func(*app.App) error) error {
	a, err := app.New(ctx, o.cfg)
	if err != nil {
		return errors.Wrap(err, "initialize session")
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("[cmd] close session")
		}
	}()
	return fn(a)
}

// quietLogs routes logs away from the terminal while a full-screen view runs.
func (o *rootOptions) quietLogs(path string) (io.Closer, error) {
	if path == "" {
		logging.SetupWriter(o.cfg.Log, io.Discard)
		return io.NopCloser(nil), nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, errors.Wrapf(err, "open log file %s", path)
	}
	logging.SetupWriter(o.cfg.Log, f)
	return f, nil
}
