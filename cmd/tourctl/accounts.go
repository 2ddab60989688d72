package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/playperu/tourcast/internal/app"
	"github.com/playperu/tourcast/internal/audiotour"
	"github.com/playperu/tourcast/internal/lifecycle"
	"github.com/playperu/tourcast/internal/store"
)

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	var in lifecycle.UserInput
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
			u, err := a.Service.CreateUser(ctx, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s)\n", u.ID, u.Email)
			return nil
		}),
	}
	create.Flags().StringVar(&in.Email, "email", "", "login email")
	create.Flags().StringVar(&in.Password, "password", "", "login password, at least 8 characters")
	create.Flags().StringVar(&in.FirstName, "first-name", "", "first name")
	create.Flags().StringVar(&in.LastName, "last-name", "", "last name")
	create.Flags().BoolVar(&in.IsAdmin, "admin", false, "grant platform admin rights")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("password")

	cmd.AddCommand(create)
	return cmd
}

func teamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "team",
		Short: "Manage teams",
	}

	var (
		in       lifecycle.TeamInput
		variants []string
		owner    string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a team",
		Long: `Create a team with its default variants. Each --variant is
CODE[:NAME[:DISPLAY_NAME]], for example --variant en-us:English.`,
		Args: cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
			in.Variants = parseVariants(variants)

			var ownerID string
			if owner != "" {
				err := a.Store.InTx(ctx, func(tx *store.Tx) error {
					u, err := tx.UserByEmail(ctx, strings.ToLower(strings.TrimSpace(owner)))
					ownerID = u.ID
					return err
				})
				if err != nil {
					return fmt.Errorf("finding owner %s: %w", owner, err)
				}
			}

			tm, err := a.Service.CreateTeam(ctx, in, ownerID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created team %s (%s)\n", tm.ID, tm.Link)
			return nil
		}),
	}
	create.Flags().StringVar(&in.Name, "name", "", "team name")
	create.Flags().StringVar(&in.Link, "link", "", "url slug, lowercase letters, digits and dashes")
	create.Flags().StringArrayVar(&variants, "variant", nil, "default variant as CODE[:NAME[:DISPLAY_NAME]], repeatable")
	create.Flags().StringVar(&owner, "owner", "", "email of the user who becomes OWNER")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("link")

	cmd.AddCommand(create)
	return cmd
}

func parseVariants(specs []string) []audiotour.Variant {
	out := make([]audiotour.Variant, 0, len(specs))
	for _, s := range specs {
		parts := strings.SplitN(s, ":", 3)
		v := audiotour.Variant{Code: parts[0], Name: parts[0], DisplayName: parts[0]}
		if len(parts) > 1 {
			v.Name, v.DisplayName = parts[1], parts[1]
		}
		if len(parts) > 2 {
			v.DisplayName = parts[2]
		}
		out = append(out, v)
	}
	return out
}
