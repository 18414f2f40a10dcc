package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/selfauth/selfauth/internal/authorize"
	"github.com/selfauth/selfauth/internal/config"
	"github.com/selfauth/selfauth/internal/store"
	"github.com/selfauth/selfauth/internal/validate"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Manage the resource owners who can log in here",
	}

	var (
		me            string
		password      string
		passwordStdin bool
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a resource owner, or reset their password",
		Long: `Register a resource owner under this deployment's authorization endpoint.
A fresh key is generated each time, which invalidates codes already issued to
that user.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !validate.URL(me) {
				return fmt.Errorf("--me must be an absolute URL")
			}
			if passwordStdin {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("reading password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("a password is required (--password or --password-stdin)")
			}

			return withStore(cmd, func(c *config.Config, db store.DB) error {
				l, err := authorize.NewLogin(c.AuthEndpoint(), me, password)
				if err != nil {
					return err
				}
				if err := db.PutLogin(context.Background(), l); err != nil {
					return err
				}
				cmd.Printf("Login for %s stored at %s\n", me, c.AuthEndpoint())
				return nil
			})
		},
	}
	add.Flags().StringVar(&me, "me", "", "The user's profile URL")
	add.Flags().StringVar(&password, "password", "", "The user's password")
	add.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")

	cmd.AddCommand(add)
	return cmd
}
