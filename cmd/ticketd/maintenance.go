package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.migrate(cmd.Context())
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Complete every event whose end time has passed, once",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.engine.Events.SweepCompleted(cmd.Context())
		if err != nil {
			return err
		}
		a.log.Info("sweep done", zap.Int("completed", n))
		return nil
	},
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administrative tasks",
}

var (
	adminEmail string
	adminName  string
)

var adminCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an admin user, or promote the user registered under --email",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		u, err := a.engine.Users.EnsureAdmin(cmd.Context(), adminEmail, adminName)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), u.ID)
		return nil
	},
}

func init() {
	adminCreateCmd.Flags().StringVar(&adminEmail, "email", "", "admin email address")
	adminCreateCmd.Flags().StringVar(&adminName, "name", "Administrator", "admin display name")
	_ = adminCreateCmd.MarkFlagRequired("email")
	adminCmd.AddCommand(adminCreateCmd)

	rootCmd.AddCommand(migrateCmd, sweepCmd, adminCmd)
}
