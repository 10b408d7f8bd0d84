// Command hadra runs the Pixel Talk data layer: an HTTP API over the user
// directory, the message log and the single active session, plus a few
// maintenance subcommands.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/vedran77/hadra/internal/app"
	"github.com/vedran77/hadra/internal/config"
	"github.com/vedran77/hadra/internal/database"
	"golang.org/x/sync/errgroup"
)

const (
	Version = "0.1.0"
	appName = "hadra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Hadra / Pixel Talk Network data service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")

	cmd.AddCommand(serveCmd(&configPath))
	cmd.AddCommand(seedCmd(&configPath))
	cmd.AddCommand(usersCmd(&configPath))
	cmd.AddCommand(resetCmd(&configPath))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	})

	return cmd
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, cfg, err := open(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := &http.Server{
				Addr:              ":" + cfg.Server.Port,
				Handler:           a.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				cfg.Log.NewLogger().Info("starting server", "addr", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
}

func seedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the storage collections and demo accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := build(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Store.Init(cmd.Context()); err != nil {
				return err
			}
			return a.Auth.SeedDefaultUsers(cmd.Context())
		},
	}
}

func usersCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "users [query]",
		Short: "List users, optionally filtered by display name",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := build(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Store.Init(cmd.Context()); err != nil {
				return err
			}

			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			users, err := a.Users.SearchUsers(cmd.Context(), query)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tEMAIL\tNAME\tONLINE\tFRIENDS")
			for _, u := range users {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%d\n", u.ID, u.Email, u.DisplayName, u.IsOnline, len(u.Friends))
			}
			return tw.Flush()
		},
	}
}

func resetCmd(configPath *string) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all users, messages and the saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to reset without --yes")
			}
			a, _, err := build(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Store.Reset(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deleting all data")
	return cmd
}

// build opens the configured backend without touching the session.
func build(ctx context.Context, configPath string) (*app.App, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := cfg.Log.NewLogger()

	backend, err := database.OpenBackend(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, nil, err
	}
	return app.New(cfg, backend, logger), cfg, nil
}

// open builds the app and runs startup: seeding and session restore.
func open(ctx context.Context, configPath string) (*app.App, *config.Config, error) {
	a, cfg, err := build(ctx, configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := a.Start(ctx); err != nil {
		a.Close()
		return nil, nil, err
	}
	return a, cfg, nil
}
