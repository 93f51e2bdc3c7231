package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/getkayan/mentorship/core/session"
	"github.com/spf13/cobra"
)

func newRootCmd(c *Client) *cobra.Command {
	root := &cobra.Command{
		Use:           "mentorctl",
		Short:         "Command line client of the mentorship session service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.BaseURL, "url", c.BaseURL, "server base URL (env MENTORSHIP_URL)")

	root.AddCommand(
		newLoginCmd(c),
		newLogoutCmd(c),
		newWhoamiCmd(c),
		newCanCmd(c),
		newSignupCmd(c),
		newResetCmd(c),
		newAuditCmd(c),
		newHealthCmd(c),
	)
	return root
}

// ---- Session Commands ----

func passwordFlag(password string) (string, error) {
	if password == "" {
		password = os.Getenv("MENTORSHIP_PASSWORD")
	}
	if password == "" {
		return "", errors.New("--password or MENTORSHIP_PASSWORD is required")
	}
	return password, nil
}

func newLoginCmd(c *Client) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := passwordFlag(password)
			if err != nil {
				return err
			}
			resp, err := c.post(cmd.Context(), "/api/v1/login", map[string]string{"email": email, "password": pw})
			if err != nil {
				return err
			}
			return c.printSnapshot(resp)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (env MENTORSHIP_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd(c *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.post(cmd.Context(), "/api/v1/logout", nil)
			if err != nil {
				return err
			}
			return c.printSnapshot(resp)
		},
	}
}

func newWhoamiCmd(c *Client) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.get(cmd.Context(), "/api/v1/session", nil)
			if err != nil {
				return err
			}
			if raw {
				return c.prettyPrint(resp)
			}
			return c.printSnapshot(resp)
		},
	}
	cmd.Flags().BoolVar(&raw, "json", false, "print the raw snapshot")
	return cmd
}

func (c *Client) printSnapshot(data []byte) error {
	var s session.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode session: %w", err)
	}
	switch {
	case s.Status == session.StatusUnauthenticated:
		fmt.Fprintln(c.Out, "not signed in")
	case s.Profile == nil:
		fmt.Fprintf(c.Out, "%s (%s), no profile\n", s.Email, s.Status)
	default:
		fmt.Fprintf(c.Out, "%s %s <%s> role=%s (%s)\n", s.Profile.FirstName, s.Profile.LastName, s.Email, s.Profile.Role, s.Status)
	}
	return nil
}

func newCanCmd(c *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "can <path>",
		Short: "Check whether the current session may open a view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.get(cmd.Context(), "/api/v1/authorize", url.Values{"path": {args[0]}})
			if err != nil {
				return err
			}
			var d struct {
				Allow        bool   `json:"allow"`
				RedirectPath string `json:"redirect_path"`
				ReturnTo     string `json:"return_to"`
				Path         string `json:"path"`
			}
			if err := json.Unmarshal(resp, &d); err != nil {
				return err
			}
			if d.Allow {
				fmt.Fprintf(c.Out, "allow %s\n", d.Path)
				return nil
			}
			if d.ReturnTo != "" {
				fmt.Fprintf(c.Out, "redirect %s -> %s (return to %s)\n", d.Path, d.RedirectPath, d.ReturnTo)
				return nil
			}
			fmt.Fprintf(c.Out, "redirect %s -> %s\n", d.Path, d.RedirectPath)
			return nil
		},
	}
}

// ---- Account Commands ----

func newSignupCmd(c *Client) *cobra.Command {
	var email, password, role string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account on the local identity provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := passwordFlag(password)
			if err != nil {
				return err
			}
			body := map[string]string{"email": email, "password": pw}
			if role != "" {
				body["role"] = role
			}
			resp, err := c.post(cmd.Context(), "/api/v1/signup", body)
			if err != nil {
				return err
			}
			return c.prettyPrint(resp)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (env MENTORSHIP_PASSWORD)")
	cmd.Flags().StringVar(&role, "role", "", "mentee, mentor or organization")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newResetCmd(c *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset a forgotten password",
	}

	var email string
	request := &cobra.Command{
		Use:   "request",
		Short: "Ask for a reset token",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.post(cmd.Context(), "/api/v1/password/reset", map[string]string{"email": email})
			if err != nil {
				return err
			}
			return c.prettyPrint(resp)
		},
	}
	request.Flags().StringVar(&email, "email", "", "account email")
	_ = request.MarkFlagRequired("email")

	var tok, password string
	complete := &cobra.Command{
		Use:   "complete",
		Short: "Set a new password with a reset token",
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := passwordFlag(password)
			if err != nil {
				return err
			}
			resp, err := c.post(cmd.Context(), "/api/v1/password/reset/complete", map[string]string{"token": tok, "password": pw})
			if err != nil {
				return err
			}
			return c.prettyPrint(resp)
		},
	}
	complete.Flags().StringVar(&tok, "token", "", "reset token")
	complete.Flags().StringVar(&password, "password", "", "new password (env MENTORSHIP_PASSWORD)")
	_ = complete.MarkFlagRequired("token")

	cmd.AddCommand(request, complete)
	return cmd
}

// ---- Audit Commands ----

func newAuditCmd(c *Client) *cobra.Command {
	var actor, subject, typ, status, since string
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List audit events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			for k, v := range map[string]string{"actor": actor, "subject": subject, "type": typ, "status": status, "since": since} {
				if v != "" {
					q.Set(k, v)
				}
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			resp, err := c.get(cmd.Context(), "/api/v1/audit", q)
			if err != nil {
				return err
			}
			return c.prettyPrint(resp)
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "principal that acted")
	cmd.Flags().StringVar(&subject, "subject", "", "affected principal or path")
	cmd.Flags().StringVar(&typ, "type", "", "event type, e.g. guard.route.denied")
	cmd.Flags().StringVar(&status, "status", "", "success, failure or blocked")
	cmd.Flags().StringVar(&since, "since", "", "RFC 3339 lower bound")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum events")
	return cmd
}

// ---- Health Commands ----

func newHealthCmd(c *Client) *cobra.Command {
	return &cobra.Command{
		Use:       "health [live|ready|full]",
		Short:     "Show server health",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"live", "ready", "full"},
		RunE: func(cmd *cobra.Command, args []string) error {
			sub := "full"
			if len(args) > 0 {
				sub = args[0]
			}
			var path string
			switch sub {
			case "live":
				path = "/healthz"
			case "ready":
				path = "/ready"
			case "full":
				path = "/health"
			default:
				return fmt.Errorf("unknown health subcommand: %s", sub)
			}
			resp, err := c.get(cmd.Context(), path, nil)
			if err != nil {
				return err
			}
			return c.prettyPrint(resp)
		},
	}
}
