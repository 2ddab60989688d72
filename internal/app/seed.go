package app

import (
	"context"

	"github.com/playperu/tourcast/internal/lifecycle"
	"github.com/playperu/tourcast/internal/store"
)

// Bootstrap creates the configured platform admin if no users exist.
// Idempotent: does nothing once any user exists or when no email is set.
func (a *App) Bootstrap(ctx context.Context) error {
	email, password := a.Config.BootstrapEmail, a.Config.BootstrapPassword
	if email == "" {
		return nil
	}

	var n int
	err := a.Store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		n, err = tx.CountUsers(ctx)
		return err
	})
	if err != nil || n > 0 {
		return err
	}

	u, err := a.Service.CreateUser(ctx, lifecycle.UserInput{
		Email:    email,
		Password: password,
		IsAdmin:  true,
	})
	if err != nil {
		return err
	}
	a.Logger.Info("bootstrap admin created", "user_id", u.ID, "email", u.Email)
	return nil
}
