// ABOUTME: Admin subcommands that query a running gateway over HTTP
// ABOUTME: Implements health and sessions against the configured address

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/yashraj-dudhe/mcp-client/internal/config"
	"github.com/yashraj-dudhe/mcp-client/internal/session"
)

// envToken supplies a bearer token to admin subcommands.
const envToken = "MCP_WEB_CLIENT_TOKEN"

// gatewayURL returns the base URL of the gateway described by cfg.
func gatewayURL(cfg *config.Config) string {
	if cfg.Tailscale.Enabled {
		return "http://" + cfg.Tailscale.Hostname
	}
	return "http://" + cfg.Server.HTTPAddr
}

func healthCmd(load configLoader) *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check gateway health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				cfg, _, err := load()
				if err != nil {
					return err
				}
				url = gatewayURL(cfg)
			}
			return runHealth(cmd.Context(), cmd.OutOrStdout(), url)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "gateway base URL (default from config)")
	return cmd
}

func runHealth(ctx context.Context, out io.Writer, baseURL string) error {
	body, err := get(ctx, strings.TrimSuffix(baseURL, "/")+"/health/ready", "")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	fmt.Fprintf(out, "healthy: %s\n", strings.TrimSpace(string(body)))
	return nil
}

func sessionsCmd(load configLoader) *cobra.Command {
	var url, token string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions on a running gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				cfg, _, err := load()
				if err != nil {
					return err
				}
				url = gatewayURL(cfg)
			}
			if token == "" {
				token = os.Getenv(envToken)
			}
			return runSessions(cmd.Context(), cmd.OutOrStdout(), url, token)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "gateway base URL (default from config)")
	cmd.Flags().StringVar(&token, "token", "", "bearer token (default $"+envToken+")")
	return cmd
}

func runSessions(ctx context.Context, out io.Writer, baseURL, token string) error {
	body, err := get(ctx, strings.TrimSuffix(baseURL, "/")+"/api/sessions", token)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	var resp struct {
		Sessions []session.Snapshot `json:"sessions"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decoding sessions: %w", err)
	}

	if len(resp.Sessions) == 0 {
		fmt.Fprintln(out, "no sessions")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tTOOLS\tRESOURCES\tCOMMAND")
	for _, s := range resp.Sessions {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n",
			s.ID, stateLabel(s.State), len(s.Tools), len(s.Resources), s.Command)
	}
	return tw.Flush()
}

func stateLabel(s session.State) string {
	switch s {
	case session.StateReady:
		return color.GreenString(s.String())
	case session.StateFailed:
		return color.RedString(s.String())
	case session.StateClosed:
		return color.HiBlackString(s.String())
	default:
		return color.YellowString(s.String())
	}
}

func get(ctx context.Context, url, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
