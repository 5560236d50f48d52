package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"morning_brief/internal/scheduler"
	"morning_brief/internal/storage/postgres"
	"morning_brief/migrations"
)

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Generate briefs for every connected user on a fixed interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			briefs, err := a.briefService(true)
			if err != nil {
				return err
			}

			a.logger.Info("starting morning brief scheduler",
				"mode", a.cfg.Brief.Mode,
				"interval", a.cfg.Brief.Interval,
				"providers", a.registry.Providers(),
			)

			sched := scheduler.NewScheduler(briefs, a.integrations, a.cfg.Brief.Interval, a.cfg.Brief.GenerateTimeout, a.logger)
			if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func generateCmd(configPath *string) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate the brief for one user and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			briefs, err := a.briefService(true)
			if err != nil {
				return err
			}

			ctx, cancel = context.WithTimeout(ctx, a.cfg.Brief.GenerateTimeout)
			defer cancel()

			return printJSON(briefs.Generate(ctx, userID))
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func listCmd(configPath *string) *cobra.Command {
	var (
		userID string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored brief items, most urgent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			briefs, err := a.briefService(false)
			if err != nil {
				return err
			}

			items, err := briefs.List(cmd.Context(), userID, limit)
			if err != nil {
				return err
			}
			return printJSON(items)
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum items (0 uses brief.default_list_limit, -1 lists all)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func deleteCmd(configPath *string) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "delete [item-id]",
		Short: "Delete a brief item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			briefs, err := a.briefService(false)
			if err != nil {
				return err
			}

			if err := briefs.Delete(cmd.Context(), userID, args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			from, to, err := postgres.Migrate(cmd.Context(), a.db, migrations.FS, a.logger)
			if err != nil {
				return err
			}
			if from == to {
				fmt.Printf("schema is up to date (version %d)\n", to)
				return nil
			}
			fmt.Printf("migrated from version %d to %d\n", from, to)
			return nil
		},
	}
}

func connectCmd(configPath *string) *cobra.Command {
	var (
		userID string
		extra  map[string]string
	)

	cmd := &cobra.Command{
		Use:   "connect [provider]",
		Short: "Start the OAuth flow for a provider and print the authorization URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := parseProvider(args[0])
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			flow, err := a.oauthService(cmd.Context())
			if err != nil {
				return err
			}

			authURL, state, err := flow.Begin(cmd.Context(), userID, provider, extra)
			if err != nil {
				return err
			}

			fmt.Printf("Open this URL to authorize %s:\n\n  %s\n\nstate: %s\n", provider, authURL, state)
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id")
	cmd.Flags().StringToStringVar(&extra, "set", nil, "integration config, e.g. --set base_url=https://acme.atlassian.net")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func callbackCmd(configPath *string) *cobra.Command {
	var code, state string

	cmd := &cobra.Command{
		Use:   "callback [provider]",
		Short: "Complete the OAuth flow with the code and state from the redirect",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := parseProvider(args[0])
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			flow, err := a.oauthService(cmd.Context())
			if err != nil {
				return err
			}

			in, err := flow.Complete(cmd.Context(), provider, code, state)
			if err != nil {
				return err
			}

			fmt.Printf("connected %s for %s\n", in.Provider, in.UserID)
			return nil
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "authorization code")
	cmd.Flags().StringVar(&state, "state", "", "state returned by the provider")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("state")
	return cmd
}

func disconnectCmd(configPath *string) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "disconnect [provider]",
		Short: "Deactivate a provider integration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := parseProvider(args[0])
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.integrationService().Disconnect(cmd.Context(), userID, provider); err != nil {
				return err
			}
			fmt.Printf("disconnected %s\n", provider)
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func integrationsCmd(configPath *string) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "integrations",
		Short: "List a user's integrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.integrationService().List(cmd.Context(), userID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tACTIVE\tCONNECTED\tEXPIRES")
			for _, in := range list {
				expires := "-"
				if in.TokenExpiresAt != nil {
					expires = in.TokenExpiresAt.Local().Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", in.Provider, in.IsActive, in.CreatedAt.Local().Format("2006-01-02"), expires)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
