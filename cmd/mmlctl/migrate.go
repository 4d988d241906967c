// cmd/mmlctl/migrate.go
package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"makino-adapter/internal/database"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the snapshot history schema",
	}

	migrator := func() (*database.Migrator, error) {
		cfg, err := opts.load()
		if err != nil {
			return nil, err
		}
		logger, err := opts.logger()
		if err != nil {
			return nil, err
		}
		return database.NewMigrator(logger, &cfg.Database), nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := migrator()
			if err != nil {
				return err
			}
			return m.Up()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Revert every migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := migrator()
			if err != nil {
				return err
			}
			return m.Down()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := migrator()
			if err != nil {
				return err
			}
			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "version %d dirty %t\n", version, dirty)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			m, err := migrator()
			if err != nil {
				return err
			}
			return m.Force(version)
		},
	})

	return cmd
}
