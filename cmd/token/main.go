// Command token issues an HS256 access token for local development and
// operator scripts when no external identity provider is configured.
//
// Usage:
//
//	token --user=alice --roles=curator,admin
//
// Reads AUTH_JWT_SECRET, AUTH_JWT_ISSUER and AUTH_ACCESS_TOKEN_TTL from the
// usual configuration sources.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/heartmarshall/curation-backend/internal/auth"
	"github.com/heartmarshall/curation-backend/internal/config"
	"github.com/heartmarshall/curation-backend/internal/domain"
)

func main() {
	user := flag.String("user", "", "subject (user id) of the token")
	rolesFlag := flag.String("roles", "curator", "comma-separated roles")
	flag.Parse()

	if *user == "" {
		fmt.Fprintln(os.Stderr, "Usage: token --user=alice [--roles=curator,admin]")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Auth.UsesJWKS() {
		log.Fatal("tokens are issued by the external identity provider (AUTH_JWKS_URL is set)")
	}

	var roles []domain.Role
	for _, name := range strings.Split(*rolesFlag, ",") {
		r := domain.Role(strings.TrimSpace(name))
		if !r.IsValid() {
			log.Fatalf("unknown role %q", name)
		}
		roles = append(roles, r)
	}

	manager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.AccessTokenTTL)
	token, err := manager.GenerateAccessToken(*user, roles)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}

	fmt.Println(token)
}
