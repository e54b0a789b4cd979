// Command lobbytoken prints a signed development token for connecting to the
// lobby without a running identity service.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"gamelobby/internal/auth"
	"gamelobby/internal/config"
	"gamelobby/pkg/types"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, out io.Writer) error {
	flags := flag.NewFlagSet("lobbytoken", flag.ContinueOnError)
	id := flags.String("id", "", "user id")
	username := flags.String("username", "", "display name")
	account := flags.String("account", "", "account id (optional)")
	ttl := flags.Duration("ttl", time.Hour, "token lifetime")
	if err := flags.Parse(args); err != nil {
		return err
	}

	// Secret and issuer come from the same GAMELOBBY_AUTH_* variables the server reads
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}

	identity := types.Identity{ID: *id, Username: *username, AccountID: *account}
	if err := identity.Validate(); err != nil {
		return fmt.Errorf("invalid identity: %w", err)
	}

	issuer, err := auth.NewTokenAuthenticator(cfg.Auth.Secret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}
	token, err := issuer.Issue(identity, *ttl)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}

	_, err = fmt.Fprintln(out, token)
	return err
}
