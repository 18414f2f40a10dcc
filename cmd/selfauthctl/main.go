// Command selfauthctl administers a selfauth deployment: database migrations,
// trusted token endpoints and resource-owner logins.
package main

import (
	"os"

	"github.com/selfauth/selfauth/cmd/selfauthctl/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
