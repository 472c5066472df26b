/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ustoz-edu/apiserver/config"
	"github.com/ustoz-edu/apiserver/internal/db"
	"github.com/ustoz-edu/apiserver/internal/logging"
	"github.com/ustoz-edu/apiserver/internal/services"
	"github.com/ustoz-edu/apiserver/internal/store"
	"go.uber.org/zap"
)

var superuserInput services.NewIdentity

// createSuperuserCmd represents the createsuperuser command
var createSuperuserCmd = &cobra.Command{
	Use:   "createsuperuser",
	Short: "Create an account with the SUPERUSER role",
	Long: `Create an account with the SUPERUSER role. Usage:

	ustoz createsuperuser --email root@example.com --first-name Root --last-name Admin --password secret
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if superuserInput.Email == "" || superuserInput.Password == "" {
			return errors.New("--email and --password are required")
		}

		cfg := config.LoadConfig()
		logger := logging.New(cfg.Log)
		defer func() { _ = logger.Sync() }()

		conn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("open database failed: %w", err)
		}
		defer conn.Close()

		identities := services.NewIdentityService(store.NewIdentityRepository(conn), logger)
		identity, err := identities.CreateSuperuser(cmd.Context(), superuserInput)
		if err != nil {
			return fmt.Errorf("create superuser failed: %w", err)
		}

		logger.Info("superuser created", zap.Int("id", identity.ID), zap.String("email", identity.Email))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createSuperuserCmd)

	createSuperuserCmd.Flags().StringVar(&superuserInput.Email, "email", "", "Email address used to log in")
	createSuperuserCmd.Flags().StringVar(&superuserInput.FirstName, "first-name", "", "First name")
	createSuperuserCmd.Flags().StringVar(&superuserInput.LastName, "last-name", "", "Last name")
	createSuperuserCmd.Flags().StringVar(&superuserInput.Password, "password", "", "Password")
}
