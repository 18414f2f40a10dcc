// Package app provides the selfauthctl command tree.
package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/selfauth/selfauth/internal/config"
	"github.com/selfauth/selfauth/internal/logging"
	"github.com/selfauth/selfauth/internal/store"
)

// NewRootCmd creates the selfauthctl root command. Configuration comes from
// the same environment variables the server reads.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "selfauthctl",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "Administer a selfauth deployment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().Bool("debug", false, "Enable debug logging")

	root.AddCommand(newMigrateCmd())
	root.AddCommand(newEndpointCmd())
	root.AddCommand(newLoginCmd())
	return root
}

func setup(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	c, err := config.New()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	level := "warn"
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = "debug"
	}
	log, err := logging.New(level, "console")
	if err != nil {
		return nil, nil, err
	}
	return c, log, nil
}

// withStore runs fn against the configured storage adapter.
func withStore(cmd *cobra.Command, fn func(*config.Config, store.DB) error) error {
	c, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	db, err := store.Open(c, log)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(c, db)
}
