package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/playperu/tourcast/internal/app"
	"github.com/playperu/tourcast/internal/lifecycle"
)

func tourCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tour",
		Short: "Archive, restore or delete tours",
	}

	deleteTour := func(permanent bool) func(context.Context, *cobra.Command, *app.App, []string) error {
		return func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			res, err := a.Service.DeleteTour(ctx, args[0], permanent)
			if err != nil {
				return err
			}
			verb := "archived"
			if permanent {
				verb = "deleted"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s tour %s with %d stops, %d resources, %d versions\n",
				verb, args[0], len(res.StopIDs), len(res.ResourceIDs), res.Versions)
			return nil
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "archive TOUR_ID",
			Short: "Archive a tour with the stops and resources only it uses",
			Args:  cobra.ExactArgs(1),
			RunE:  withApp(deleteTour(false)),
		},
		&cobra.Command{
			Use:   "restore TOUR_ID",
			Short: "Restore an archived tour",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
				res, err := a.Service.RestoreTour(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "restored tour %s with %d stops, %d resources\n", args[0], res.Stops, res.Resources)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "delete TOUR_ID",
			Short: "Permanently delete a tour, its versions and the stops and resources only it uses",
			Args:  cobra.ExactArgs(1),
			RunE:  withApp(deleteTour(true)),
		},
	)
	return cmd
}

func versionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Publish or delete tour versions",
	}

	var opts lifecycle.PublishOptions
	publish := &cobra.Command{
		Use:   "publish TOUR_ID",
		Short: "Snapshot a tour into a new version",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			v, err := a.Service.PublishVersion(ctx, args[0], opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published version %s (live=%t staging=%t)\n", v.ID, v.IsLive, v.IsStaging)
			return nil
		}),
	}
	publish.Flags().BoolVar(&opts.IsLive, "live", false, "make the version live, replacing the current live one")
	publish.Flags().BoolVar(&opts.IsStaging, "staging", false, "publish to the staging environment")
	publish.Flags().StringVar(&opts.Password, "password", "", "password viewers must send")

	cmd.AddCommand(
		publish,
		&cobra.Command{
			Use:   "delete VERSION_ID",
			Short: "Delete a version and its copied assets",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
				if err := a.Service.DeleteVersion(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted version %s\n", args[0])
				return nil
			}),
		},
	)
	return cmd
}
