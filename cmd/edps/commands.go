package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nkiryanov/edps/internal/apperrors"
	"github.com/nkiryanov/edps/internal/dashboard"
	"github.com/nkiryanov/edps/internal/router"
)

// Build information. Populated at build time via -ldflags
var (
	Version = "dev"
	Commit  = "none"
)

// cli holds the app shared by subcommands of one invocation
type cli struct {
	cfg  *Config
	app  *App
	root *cobra.Command
}

func newCLI(cfg *Config) *cli {
	c := &cli{cfg: cfg}
	c.root = c.rootCmd()
	return c
}

// execute runs one command. The app is closed whatever the command returns
func (c *cli) execute(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	defer c.close()

	c.root.SetArgs(args)
	c.root.SetIn(stdin)
	c.root.SetOut(stdout)

	return c.root.ExecuteContext(ctx)
}

func (c *cli) rootCmd() *cobra.Command {

	root := &cobra.Command{
		Use:   "edps",
		Short: "EDPS dashboard client",
		Long: `Command line client of the EDPS student dropout prediction dashboard.

Remembered login is restored on start and refreshed before it expires.

Configuration:
  Flags override environment variables which override '.env' in the working directory.
  EDPS_API_BASE_URL, EDPS_CREDENTIALS_FILE, EDPS_TIMEOUT, LOG_LEVEL, ENVIRONMENT`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.start,
	}
	c.cfg.BindFlags(root.PersistentFlags())

	root.AddCommand(
		c.loginCmd(),
		c.logoutCmd(),
		c.whoamiCmd(),
		c.openCmd(),
		c.uploadCmd(),
		versionCmd(),
	)

	return root
}

func (c *cli) start(cmd *cobra.Command, args []string) error {
	app, err := NewApp(c.cfg)
	if err != nil {
		return err
	}
	c.app = app

	app.Start(cmd.Context())
	app.Session.CheckTokenExpiration()
	return nil
}

func (c *cli) close() {
	if c.app != nil {
		c.app.Close()
		c.app = nil
	}
}

func (c *cli) loginCmd() *cobra.Command {
	var (
		email    string
		password string
		remember bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the dashboard",
		Long: `Sign in with email and password.

Password is read from stdin when the flag is not set.
With --remember the session survives this process and is restored next time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				p, err := readLine(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				password = p
			}

			if err := c.app.Session.Login(cmd.Context(), email, password, remember); err != nil {
				return err
			}

			user, _ := c.app.Session.User()
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", user.Email, user.Role)
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "u", "", "Account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password")
	cmd.Flags().BoolVarP(&remember, "remember", "r", false, "Keep session between runs")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget remembered credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c.app.Session.SignOut(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show signed in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, ok := c.app.Session.User()
			if !c.app.Session.IsAuthenticated() || !ok {
				return apperrors.ErrNotAuthenticated
			}

			scope, err := c.app.Creds.Scope()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s <%s>\n", user.FirstName, user.LastName, user.Email)
			fmt.Fprintf(out, "  Role:    %s\n", user.Role)
			fmt.Fprintf(out, "  Expires: %s\n", c.app.Session.Expiry().Format(time.RFC3339))
			fmt.Fprintf(out, "  Stored:  %s\n", scope)
			return nil
		},
	}
}

func (c *cli) openCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <path>",
		Short: "Open dashboard page and print its data as JSON",
		Long: `Open dashboard page, e.g. '/', '/students/1001', '/insights' or '/admin'.

Navigation is guarded: pages that need login redirect to '/login',
admin pages redirect advisors to '/'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nav, err := c.app.Router.Navigate(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, nav.Title)
			if nav.RedirectedFrom != "" {
				fmt.Fprintf(out, "Redirected from %s: %s\n", nav.RedirectedFrom, nav.Reason)
			}

			view, err := c.app.Dashboard.Load(cmd.Context(), nav)
			if err != nil {
				return err
			}
			return writeJSON(out, view)
		},
	}
}

func (c *cli) uploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "upload <students|grades> <file.csv>",
		Short:     "Upload students or grades CSV",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{dashboard.UploadStudents.Name, dashboard.UploadGrades.Name},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := dashboard.UploadKindByName(args[0])
			if !ok {
				return fmt.Errorf("unknown upload kind %q, want students or grades", args[0])
			}

			nav, err := c.app.Router.Navigate("/upload")
			if err != nil {
				return err
			}
			if nav.Route.Name != router.RouteUploadCSV {
				return fmt.Errorf("%w: %s", apperrors.ErrNotAuthenticated, nav.Reason)
			}

			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close() // nolint:errcheck

			result, err := c.app.Dashboard.Upload(cmd.Context(), kind, args[1], f)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// No session needed
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "edps %s\n", Version)
			fmt.Fprintf(out, "  Commit:     %s\n", Commit)
			fmt.Fprintf(out, "  Go version: %s\n", runtime.Version())
		},
	}
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}

	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password")
	}
	return line, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
