package cmds

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/agentdesk/frontend/internal/app"
	authService "github.com/zhouzirui/agentdesk/frontend/internal/service/auth"
)

type credentialFlags struct {
	email         string
	password      string
	passwordStdin bool
}

func (f *credentialFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.email, "email", "", "account email")
	cmd.Flags().StringVar(&f.password, "password", "", "account password")
	cmd.Flags().BoolVar(&f.passwordStdin, "password-stdin", false, "read the password from stdin")
}

func (f *credentialFlags) resolvePassword(in io.Reader) (string, error) {
	if !f.passwordStdin {
		return f.password, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", errors.Wrap(err, "read password")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLoginCommand(opts *rootOptions) *cobra.Command {
	creds := &credentialFlags{}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := creds.resolvePassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return opts.openApp(cmd.Context(), func(a *app.App) error {
				if err := a.Auth.Login(cmd.Context(), creds.email, password); err != nil {
					return errors.New(authService.DisplayMessage(err))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", strings.TrimSpace(creds.email))
				return nil
			})
		},
	}

	creds.bind(cmd)
	return cmd
}

func newRegisterCommand(opts *rootOptions) *cobra.Command {
	var name string
	creds := &credentialFlags{}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := creds.resolvePassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return opts.openApp(cmd.Context(), func(a *app.App) error {
				reg, err := a.Auth.Register(cmd.Context(), name, creds.email, password)
				if err != nil {
					return errors.New(authService.DisplayMessage(err))
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Account created for %s\n", reg.Email)
				fmt.Fprintln(out, "Run `agentdesk login` to sign in.")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name (defaults to the email's local part)")
	creds.bind(cmd)
	return cmd
}

func newLogoutCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.openApp(cmd.Context(), func(a *app.App) error {
				a.Auth.Logout()
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
				return nil
			})
		},
	}
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the signed-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.openApp(cmd.Context(), func(a *app.App) error {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Backend: %s\n", a.Client.BaseURL())

				tok, ok := a.Tokens.Read()
				if !ok {
					fmt.Fprintln(out, "Not signed in")
					return nil
				}

				profile, err := a.Client.Profile(cmd.Context(), tok)
				if err != nil {
					return errors.New(authService.DisplayMessage(err))
				}
				fmt.Fprintf(out, "Signed in as %s <%s>\n", profile.Name, profile.Email)
				if profile.CompanyFAQCount > 0 {
					fmt.Fprintf(out, "Company FAQs: %d\n", profile.CompanyFAQCount)
				}
				return nil
			})
		},
	}
}
