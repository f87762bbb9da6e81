package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/globus-go/internal/auth"
	"github.com/tonimelisma/globus-go/internal/config"
	"github.com/tonimelisma/globus-go/internal/tokenfile"
)

func newLoginCmd() *cobra.Command {
	var noBrowser bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with Globus Auth",
		Long: `Log in with the native app flow: open the authorization URL, approve the
requested scopes and paste the auth code back. Tokens are cached per resource
server and refreshed silently.

With --auth client-credentials, runs the client-credentials grant once to check
the client ID and secret. Nothing is cached in that mode.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogin(cmd, noBrowser)
		},
	}

	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "print the authorization URL without opening a browser")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke and remove the saved tokens",
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the authenticated identity",
		RunE:  runWhoami,
	}
}

func newIdentityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "identity USERNAME...",
		Short: "Look up Globus identities by username",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runIdentity,
	}
}

func runLogin(cmd *cobra.Command, noBrowser bool) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()
	s := authSettings(cc.Cfg.Config)

	if cc.Cfg.Auth.Mode == config.AuthClientCredentials {
		tf, err := auth.ClientCredentials(ctx, s)
		if err != nil {
			return err
		}

		cc.Statusf("Client credentials accepted for %v.\n", tf.ResourceServers())

		return nil
	}

	cc.Logger.Info("login started", "token_path", cc.Cfg.TokenPath)

	// The prompt goes to stderr and is never silenced by --quiet.
	tf, err := auth.LoginNative(ctx, s, cc.Cfg.TokenPath, auth.Prompt{
		Out:       os.Stderr,
		In:        os.Stdin,
		OpenURL:   openBrowser,
		NoBrowser: noBrowser,
	}, cc.Logger)
	if err != nil {
		return err
	}

	cc.Statusf("Login successful. Tokens saved for %v.\n", tf.ResourceServers())

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if err := auth.Logout(cmd.Context(), authSettings(cc.Cfg.Config), cc.Cfg.TokenPath, cc.httpClient(), cc.Logger); err != nil {
		return err
	}

	cc.Statusf("Logged out.\n")

	return nil
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	ID              string   `json:"id"`
	Username        string   `json:"username"`
	Name            string   `json:"name,omitempty"`
	Email           string   `json:"email,omitempty"`
	Organization    string   `json:"organization,omitempty"`
	ResourceServers []string `json:"resource_servers,omitempty"`
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	ts, err := cc.tokenSource(ctx, auth.ResourceServerAuth)
	if err != nil {
		return err
	}

	info, err := auth.FetchUserInfo(ctx, cc.Cfg.Auth.AuthURL, ts.OAuth2())
	if err != nil {
		return fmt.Errorf("fetching user info: %w", err)
	}

	out := whoamiOutput{
		ID:           info.Subject,
		Username:     info.PreferredUsername,
		Name:         info.Name,
		Email:        info.Email,
		Organization: info.Organization,
	}

	if cc.Cfg.Auth.Mode != config.AuthClientCredentials {
		tf, loadErr := tokenfile.Load(cc.Cfg.TokenPath)
		if loadErr == nil && tf != nil {
			out.ResourceServers = tf.ResourceServers()
		}
	}

	if cc.Flags.JSON {
		return cc.PrintJSON(out)
	}

	fmt.Fprintf(cc.Out, "User:  %s\n", out.Username)
	fmt.Fprintf(cc.Out, "ID:    %s\n", out.ID)

	if out.Name != "" {
		fmt.Fprintf(cc.Out, "Name:  %s\n", out.Name)
	}

	if out.Email != "" {
		fmt.Fprintf(cc.Out, "Email: %s\n", out.Email)
	}

	if len(out.ResourceServers) > 0 {
		fmt.Fprintf(cc.Out, "Tokens: %v\n", out.ResourceServers)
	}

	return nil
}

func runIdentity(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	ic, err := cc.identityClient(ctx)
	if err != nil {
		return err
	}

	ids, err := ic.LookupUsernames(ctx, args...)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		if ids == nil {
			ids = []auth.Identity{}
		}

		return cc.PrintJSON(ids)
	}

	if len(ids) == 0 {
		return errors.New("no identities found")
	}

	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, []string{id.ID, id.Username, id.Name, id.Status})
	}

	printTable(cc.Out, []string{"ID", "USERNAME", "NAME", "STATUS"}, rows)

	return nil
}

// openBrowser launches the platform URL opener.
func openBrowser(u string) error {
	var c *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		c = exec.Command("open", u)
	case "windows":
		c = exec.Command("rundll32", "url.dll,FileProtocolHandler", u)
	default:
		c = exec.Command("xdg-open", u)
	}

	if err := c.Start(); err != nil {
		return fmt.Errorf("opening browser: %w", err)
	}

	go c.Wait() //nolint:errcheck // the opener's exit status is irrelevant

	return nil
}
