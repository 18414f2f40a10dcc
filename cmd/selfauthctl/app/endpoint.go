package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/selfauth/selfauth/internal/config"
	"github.com/selfauth/selfauth/internal/store"
	"github.com/selfauth/selfauth/internal/validate"
)

func newEndpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "endpoint",
		Short: "Manage the authorization endpoints the token endpoint trusts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add URL",
		Short: "Trust an authorization endpoint to vouch for codes",
		Long: `Trust an authorization endpoint. Endpoints are asked in the order they
were added; the first that accepts a code wins.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !validate.URL(args[0]) {
				return fmt.Errorf("not an absolute URL: %s", args[0])
			}
			return withStore(cmd, func(_ *config.Config, db store.DB) error {
				if err := db.AddTrustedEndpoint(context.Background(), args[0]); err != nil {
					return err
				}
				cmd.Printf("Trusted %s\n", args[0])
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List trusted authorization endpoints in the order they are asked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(_ *config.Config, db store.DB) error {
				endpoints, err := db.TrustedEndpoints(context.Background())
				if err != nil {
					return err
				}
				for _, ep := range endpoints {
					cmd.Println(ep)
				}
				return nil
			})
		},
	})
	return cmd
}
