// ABOUTME: Entry point for the mcp-web-client gateway
// ABOUTME: Serves MCP stdio servers over HTTP and ships admin subcommands

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/yashraj-dudhe/mcp-client/internal/auth"
	"github.com/yashraj-dudhe/mcp-client/internal/config"
	"github.com/yashraj-dudhe/mcp-client/internal/gateway"
)

// version is overridden at build time with -ldflags.
var version = "dev"

const banner = `
                                        _     _ _            _
 _ __ ___   ___ _ __     __      _____| |__ | (_) ___ _ __ | |_
| '_ ' _ \ / __| '_ \____\ \ /\ / / _ \ '_ \| | |/ _ \ '_ \| __|
| | | | | | (__| |_) |____\ V  V /  __/ |_) | | |  __/ | | | |_
|_| |_| |_|\___| .__/      \_/\_/ \___|_.__/|_|_|\___|_| |_|\__|
               |_|
`

func main() {
	cobra.EnableCommandSorting = false

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "mcp-web-client",
		Short:         "Bridge MCP stdio servers to web clients",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default $"+config.EnvConfigPath+" or "+config.DefaultPath()+")")

	loadConfig := func() (*config.Config, string, error) {
		path, explicit := config.Resolve(configPath)
		cfg, err := config.LoadOrDefault(path, explicit)
		if err != nil {
			return nil, path, fmt.Errorf("loading config: %w", err)
		}
		return cfg, path, nil
	}

	root.AddCommand(
		serveCmd(loadConfig),
		initCmd(&configPath),
		healthCmd(loadConfig),
		sessionsCmd(loadConfig),
		tokenCmd(loadConfig),
		versionCmd(),
	)
	return root
}

type configLoader func() (*config.Config, string, error)

func serveCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := load()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, path)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config, configPath string) error {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	gray.Printf("    version: %s\n\n", version)

	logger := setupLogger(cfg.Logging)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	if cfg.Tailscale.Enabled {
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	} else {
		fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	}
	green.Print("    ▶ ")
	if cfg.Database.Path != "" {
		fmt.Printf("Ledger:    %s\n", cfg.Database.Path)
	} else {
		fmt.Printf("Ledger:    ")
		yellow.Println("disabled")
	}
	if cfg.Redis.Addr != "" {
		green.Print("    ▶ ")
		fmt.Printf("Redis:     %s (%s)\n", cfg.Redis.Addr, cfg.Redis.Stream)
	}
	if cfg.Auth.JWTSecret == "" {
		yellow.Println("    ! auth disabled, the API is open to anyone who can reach it")
	}
	fmt.Println()

	logger.Info("starting mcp-web-client",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"version", version,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(ctx)
}

func initCmd(configPath *string) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := config.Resolve(*configPath)
			if err := config.WriteTemplate(path, force); err != nil {
				if errors.Is(err, config.ErrConfigExists) {
					return fmt.Errorf("%w (use --force to overwrite)", err)
				}
				return err
			}

			secret, err := generateSecret()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			green := color.New(color.FgGreen)
			green.Fprint(out, "✓ ")
			fmt.Fprintf(out, "Wrote %s\n\n", path)
			fmt.Fprintln(out, "To require bearer tokens on the API, export a secret before serving:")
			fmt.Fprintf(out, "  export MCP_WEB_CLIENT_JWT_SECRET=%s\n", secret)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config file")
	return cmd
}

// generateSecret returns a random secret suitable for auth.jwt_secret.
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func tokenCmd(load configLoader) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load()
			if err != nil {
				return err
			}
			token, err := issueToken(cfg, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&subject, "subject", "s", "", "token subject (required)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func issueToken(cfg *config.Config, subject string, ttl time.Duration) (string, error) {
	if cfg.Auth.JWTSecret == "" {
		return "", errors.New("auth.jwt_secret is not configured")
	}
	if ttl <= 0 {
		return "", errors.New("--ttl must be positive")
	}
	return auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)).Generate(subject, ttl)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mcp-web-client %s\n", version)
		},
	}
}
