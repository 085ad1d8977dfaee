package main

import (
	"errors"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	ar "github.com/panyam/authrepo"
)

// NewSchemaCmd creates the schema subcommand.
func NewSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Provision the identity store",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "ensure",
		Short: "Create any missing tables, indexes or directories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRepository(cmd, func(repo *ar.Repository) error {
				if err := repo.EnsureSchema(); err != nil {
					return oops.Code("SCHEMA_FAILED").With("operation", "ensure schema").Wrap(err)
				}
				cmd.Println("Schema is up to date")
				return nil
			})
		},
	})

	var confirmed bool
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Drop all accounts and provider links and recreate the schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirmed {
				return errors.New("schema reset deletes every account; pass --yes to confirm")
			}
			return withRepository(cmd, func(repo *ar.Repository) error {
				if err := repo.ResetSchema(); err != nil {
					return oops.Code("SCHEMA_FAILED").With("operation", "reset schema").Wrap(err)
				}
				cmd.Println("Schema reset")
				return nil
			})
		},
	}
	reset.Flags().BoolVar(&confirmed, "yes", false, "confirm deleting all data")
	cmd.AddCommand(reset)

	return cmd
}

// withRepository opens the configured store for the duration of fn.
func withRepository(cmd *cobra.Command, fn func(repo *ar.Repository) error) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(cmd.Context(), cfg.Store)
	if err != nil {
		return oops.Code("STORE_CONNECT_FAILED").With("backend", cfg.Store.Backend).Wrap(err)
	}
	defer closeStore()

	repo := (&ar.Repository{
		Store:  store,
		Realm:  cfg.Digest.Realm,
		Logger: logger,
	}).EnsureDefaults()
	return fn(repo)
}
