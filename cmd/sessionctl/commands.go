package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"gopkg.in/yaml.v3"

	"sessiongate/internal/authclient"
	"sessiongate/internal/authstate"
	"sessiongate/internal/config"
	"sessiongate/internal/container"
	"sessiongate/internal/domain"
	"sessiongate/pkg/logger"
)

type options struct {
	format  string
	timeout time.Duration
}

// stateView is the printable form of an auth state
type stateView struct {
	Status  domain.AuthStatus `json:"status" yaml:"status"`
	UserID  string            `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	Email   string            `json:"email,omitempty" yaml:"email,omitempty"`
	Profile *domain.Profile   `json:"profile,omitempty" yaml:"profile,omitempty"`
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "sessionctl",
		Short:         "Drive an auth session against the identity provider",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.format, "format", "text", "output format: text, json or yaml")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 15*time.Second, "how long to wait for the session to settle")

	root.AddCommand(newSignInCmd(opts), newSignUpCmd(opts), newOAuthCmd(opts), newResumeCmd(opts))
	return root
}

func newSignInCmd(opts *options) *cobra.Command {
	var email, password string
	var watch, signOut, refresh, reloadUser bool

	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in with email and password and print the resolved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMachine(cmd, opts, nil, func(m *authstate.Machine, client *authclient.Client) error {
				if result := m.SignIn(email, password); !result.OK() {
					return fmt.Errorf("sign in failed: %s", result.Error)
				}

				state, err := waitFor(m, hasStatus(domain.AuthAuthenticated), opts.timeout)
				if err != nil {
					return err
				}
				if reloadUser {
					identity, err := client.ReloadUser(cmd.Context())
					if err != nil {
						return fmt.Errorf("reload user failed: %w", err)
					}
					// USER_UPDATED carries the reloaded identity into the machine
					state, err = waitFor(m, func(s domain.AuthState) bool {
						return s.IsAuthenticated() && s.Session.User == identity
					}, opts.timeout)
					if err != nil {
						return err
					}
				}
				if refresh {
					if result := m.RefreshProfile(); !result.OK() {
						return fmt.Errorf("refresh profile failed: %s", result.Error)
					}
					state = m.State()
				}
				return finish(cmd, opts, m, state, watch, signOut)
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", os.Getenv("SESSIONCTL_PASSWORD"), "account password (default $SESSIONCTL_PASSWORD)")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and print every state change")
	cmd.Flags().BoolVar(&signOut, "sign-out", false, "sign out before exiting")
	cmd.Flags().BoolVar(&refresh, "refresh-profile", false, "reload the profile bypassing the cache")
	cmd.Flags().BoolVar(&reloadUser, "reload-user", false, "fetch the identity again from the provider")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newSignUpCmd(opts *options) *cobra.Command {
	var email, password, name string

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Register a new account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMachine(cmd, opts, nil, func(m *authstate.Machine, client *authclient.Client) error {
				if result := m.SignUp(email, password, name); !result.OK() {
					return fmt.Errorf("sign up failed: %s", result.Error)
				}

				// projects with email confirmation return no session
				session, err := client.GetSession(cmd.Context())
				if err != nil {
					return err
				}
				if session == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "Account created, check your inbox to confirm the email address")
					return nil
				}

				state, err := waitFor(m, hasStatus(domain.AuthAuthenticated), opts.timeout)
				if err != nil {
					return err
				}
				return printState(cmd.OutOrStdout(), opts.format, state)
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", os.Getenv("SESSIONCTL_PASSWORD"), "account password (default $SESSIONCTL_PASSWORD)")
	cmd.Flags().StringVar(&name, "name", "", "full name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newOAuthCmd(opts *options) *cobra.Command {
	var provider string
	var urlOnly bool

	cmd := &cobra.Command{
		Use:   "oauth",
		Short: "Sign in through a social provider",
		Long: "Prints the authorization URL, then reads the callback URL (or its code) from\n" +
			"stdin and exchanges it for a session.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMachine(cmd, opts, nil, func(m *authstate.Machine, client *authclient.Client) error {
				if result := m.SignInWithOAuth(provider); !result.OK() {
					return fmt.Errorf("oauth sign in failed: %s", result.Error)
				}
				if urlOnly {
					return nil
				}

				fmt.Fprint(cmd.OutOrStdout(), "Paste the callback URL: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("no callback received: %w", err)
				}
				code, err := callbackCode(line)
				if err != nil {
					return err
				}

				if _, err := client.ExchangeCode(cmd.Context(), code); err != nil {
					return fmt.Errorf("code exchange failed: %w", err)
				}
				state, err := waitFor(m, hasStatus(domain.AuthAuthenticated), opts.timeout)
				if err != nil {
					return err
				}
				return printState(cmd.OutOrStdout(), opts.format, state)
			})
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "google", "google, github, facebook or azure")
	cmd.Flags().BoolVar(&urlOnly, "url-only", false, "print the authorization URL and exit")
	return cmd
}

func newResumeCmd(opts *options) *cobra.Command {
	var refreshToken string
	var watch, signOut bool

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume a session from a stored refresh token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if refreshToken == "" {
				return fmt.Errorf("a refresh token is required")
			}

			restore := func(client *authclient.Client) {
				// an already expired access token forces a refresh on the first read
				client.Restore(&domain.Session{Token: &oauth2.Token{
					RefreshToken: refreshToken,
					Expiry:       time.Unix(1, 0),
				}})
			}

			return withMachine(cmd, opts, restore, func(m *authstate.Machine, client *authclient.Client) error {
				state := m.State()
				if !state.IsAuthenticated() {
					return fmt.Errorf("refresh token was not accepted")
				}
				return finish(cmd, opts, m, state, watch, signOut)
			})
		},
	}

	cmd.Flags().StringVar(&refreshToken, "refresh-token", os.Getenv("SESSIONCTL_REFRESH_TOKEN"), "refresh token (default $SESSIONCTL_REFRESH_TOKEN)")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and print every state change")
	cmd.Flags().BoolVar(&signOut, "sign-out", false, "sign out before exiting")
	return cmd
}

// finish prints state, optionally streams changes and signs out
func finish(cmd *cobra.Command, opts *options, m *authstate.Machine, state domain.AuthState, watch, signOut bool) error {
	if err := printState(cmd.OutOrStdout(), opts.format, state); err != nil {
		return err
	}
	if watch {
		watchStates(cmd, opts, m)
	}
	if !signOut {
		return nil
	}

	if result := m.SignOut(); !result.OK() {
		return fmt.Errorf("sign out failed: %s", result.Error)
	}
	state, err := waitFor(m, hasStatus(domain.AuthUnauthenticated), opts.timeout)
	if err != nil {
		return err
	}
	return printState(cmd.OutOrStdout(), opts.format, state)
}

// callbackCode accepts a full callback URL or a bare code
func callbackCode(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("empty callback")
	}
	if !strings.Contains(input, "?") {
		return input, nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("invalid callback URL: %w", err)
	}
	q := u.Query()
	if desc := q.Get("error_description"); desc != "" {
		return "", fmt.Errorf("provider error: %s", desc)
	}
	code := q.Get("code")
	if code == "" {
		return "", fmt.Errorf("callback URL has no code")
	}
	return code, nil
}

// withMachine builds the container and a started machine, runs fn and stops the machine.
// setup, when set, runs against the session client before the machine starts.
func withMachine(cmd *cobra.Command, opts *options, setup func(*authclient.Client), fn func(*authstate.Machine, *authclient.Client) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.SupabaseURL == "" || cfg.SupabaseAnonKey == "" {
		return fmt.Errorf("SUPABASE_URL and SUPABASE_ANON_KEY are required")
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	c, err := container.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	out := cmd.OutOrStdout()
	machine, client := c.NewAuthMachine(authstate.NavigatorFunc(func(path string) {
		fmt.Fprintf(out, "-> %s\n", path)
	}))
	defer machine.Stop()

	if setup != nil {
		setup(client)
	}

	if err := machine.Start(cmd.Context()); err != nil {
		return err
	}
	select {
	case <-machine.Ready():
	case <-ctx.Done():
		return fmt.Errorf("timed out loading session")
	}

	return fn(machine, client)
}

func hasStatus(status domain.AuthStatus) func(domain.AuthState) bool {
	return func(s domain.AuthState) bool { return s.Status == status }
}

// waitFor blocks until a state satisfies done or timeout elapses
func waitFor(m *authstate.Machine, done func(domain.AuthState) bool, timeout time.Duration) (domain.AuthState, error) {
	states, unwatch := m.Watch()
	defer unwatch()

	deadline := time.After(timeout)
	for {
		select {
		case state, ok := <-states:
			if !ok {
				return domain.AuthState{}, fmt.Errorf("machine stopped")
			}
			if done(state) {
				return state, nil
			}
		case <-deadline:
			return domain.AuthState{}, fmt.Errorf("timed out waiting for the session")
		}
	}
}

func watchStates(cmd *cobra.Command, opts *options, m *authstate.Machine) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	states, unwatch := m.Watch()
	defer unwatch()

	<-states // current state was already printed
	for {
		select {
		case state, ok := <-states:
			if !ok {
				return
			}
			if err := printState(cmd.OutOrStdout(), opts.format, state); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func printState(w io.Writer, format string, state domain.AuthState) error {
	view := stateView{Status: state.Status, Profile: state.Profile}
	if state.Session.HasUser() {
		view.UserID = state.Session.User.ID
		view.Email = state.Session.User.Email
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(view)
	case "text", "":
		fmt.Fprintf(w, "status: %s\n", view.Status)
		if view.UserID != "" {
			fmt.Fprintf(w, "user:   %s <%s>\n", view.UserID, view.Email)
		}
		if view.Profile != nil {
			name := "-"
			if view.Profile.FullName != nil {
				name = *view.Profile.FullName
			}
			fmt.Fprintf(w, "name:   %s\nrole:   %s (%s)\n", name, view.Profile.Role, view.Profile.Source)
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
