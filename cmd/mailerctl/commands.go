// cmd/mailerctl/commands.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/unclebandit/mailer-backend/internal/app"
	"github.com/unclebandit/mailer-backend/internal/db"
	"github.com/unclebandit/mailer-backend/internal/model"
)

// errNoBroker rejects enqueueing onto an in-process queue that no consumer
// will ever drain once the CLI exits.
var errNoBroker = errors.New("rabbitmq.url is not set, nothing would consume the task; rerun with --sync")

type rootOptions struct {
	configPath string
	sync       bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "mailerctl",
		Short:        "Operate the mailing service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "directory holding config.yaml")
	root.PersistentFlags().BoolVar(&opts.sync, "sync", false, "apply in this process instead of enqueueing a task")

	root.AddCommand(
		newActivationCmd(opts, "start", "Activate every mailing of a user", true),
		newActivationCmd(opts, "stop", "Deactivate every mailing of a user", false),
		newDispatchCmd(opts),
		newMigrateCmd(opts),
	)
	return root
}

func parseUserID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user_id %q", arg)
	}
	return id, nil
}

// producer bootstraps the queues for an enqueue-only command.
func producer(ctx context.Context, opts *rootOptions) (*app.App, error) {
	a, err := app.Bootstrap(ctx, opts.configPath, app.Needs{Queues: true})
	if err != nil {
		return nil, err
	}
	if a.InProcess {
		a.Close()
		return nil, errNoBroker
	}
	return a, nil
}

func newActivationCmd(opts *rootOptions, use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <user_id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if opts.sync {
				a, err := app.Bootstrap(ctx, opts.configPath, app.Needs{DB: true, Redis: true})
				if err != nil {
					return err
				}
				defer a.Close()
				svc := a.ActivationService()
				if active {
					return svc.Activate(ctx, userID)
				}
				return svc.Deactivate(ctx, userID)
			}

			a, err := producer(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if active {
				err = a.Producer().EnqueueActivate(ctx, userID)
			} else {
				err = a.Producer().EnqueueDeactivate(ctx, userID)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s queued for user %d\n", use, userID)
			return nil
		},
	}
}

func newDispatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "dispatch <daily|weekly|monthly>",
		Short:     "Fire a dispatch trigger now",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"daily", "weekly", "monthly"},
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := model.ParsePeriodicity(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if opts.sync {
				return runDispatch(ctx, cmd, opts, p)
			}

			a, err := producer(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Producer().EnqueueTrigger(ctx, p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s trigger queued\n", p)
			return nil
		},
	}
}

func runDispatch(ctx context.Context, cmd *cobra.Command, opts *rootOptions, p model.Periodicity) error {
	a, err := app.Bootstrap(ctx, opts.configPath, app.Needs{DB: true, Redis: true})
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.Dispatcher().Run(ctx, p)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Bootstrap(cmd.Context(), opts.configPath, app.Needs{DB: true})
			if err != nil {
				return err
			}
			defer a.Close()
			if err := db.RunMigrations(a.DB); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
