package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/quintonwall/airbyte-token-manager/internal/app"
	"github.com/quintonwall/airbyte-token-manager/internal/observability"
	"github.com/quintonwall/airbyte-token-manager/tokenmanager"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:  "airbyte-token",
		Usage: "Airbyte API access token manager",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
		},
		Commands: []*cli.Command{
			configureCommand(),
			tokenCommand(),
			headerCommand(),
			statusCommand(),
			serveCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

// setup loads configuration and installs logging for a command action.
func setup(cmd *cli.Command) (*app.Config, error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := observability.Instrument(cfg.LogLevel, string(cfg.LogFormat)); err != nil {
		return nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	return cfg, nil
}

func configureCommand() *cli.Command {
	return &cli.Command{
		Name:  "configure",
		Usage: "store API credentials",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "client-id",
				Usage: "Airbyte application client id",
			},
			&cli.StringFlag{
				Name:  "client-secret",
				Usage: "Airbyte application client secret (prompted if omitted)",
			},
			&cli.StringFlag{
				Name:  "workspace-id",
				Usage: "Airbyte workspace id",
			},
		},
		Action: configureAction,
	}
}

func configureAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}

	secret := cmd.String("client-secret")
	if secret == "" {
		secret, err = promptSecret("Client secret: ")
		if err != nil {
			return err
		}
	}

	creds := tokenmanager.Credentials{
		ClientID:     cmd.String("client-id"),
		ClientSecret: secret,
		WorkspaceID:  cmd.String("workspace-id"),
	}
	if err := creds.Validate(); err != nil {
		return err
	}

	store, err := cfg.Credentials.NewStore()
	if err != nil {
		return fmt.Errorf("failed to create credential store: %w", err)
	}
	if err := store.Write(ctx, creds); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	fmt.Printf("credentials stored (%s storage)\n", cfg.Credentials.Storage)
	return nil
}

// promptSecret reads a secret from the terminal without echoing it.
func promptSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("client secret required (stdin is not a terminal)")
	}

	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading client secret: %w", err)
	}
	return string(secret), nil
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "print a valid access token",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := setup(cmd)
			if err != nil {
				return err
			}

			manager, err := app.NewManager(ctx, cfg)
			if err != nil {
				return err
			}

			token, err := manager.Token(ctx)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
}

func headerCommand() *cli.Command {
	return &cli.Command{
		Name:  "header",
		Usage: "print the Authorization header for API requests",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := setup(cmd)
			if err != nil {
				return err
			}

			manager, err := app.NewManager(ctx, cfg)
			if err != nil {
				return err
			}

			header, err := manager.AuthHeader(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Authorization: %s\n", header["Authorization"])
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "print the token cache status as JSON",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := setup(cmd)
			if err != nil {
				return err
			}

			manager, err := app.NewManager(ctx, cfg)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(manager.Status(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the local token broker",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "server--host",
				Usage: "broker host",
				Value: app.DefaultConfigServerHost,
			},
			&cli.IntFlag{
				Name:  "server--port",
				Usage: "broker port",
				Value: int(app.DefaultConfigServerPort),
			},
		},
		Action: serveAction,
	}
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	slog.InfoContext(ctx, "starting")

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("app failed to start: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}
