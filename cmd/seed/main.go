// Command seed provisions development users and API keys. The plaintext
// keys are printed exactly once; only bcrypt hashes are stored.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shieldgate/gateway/internal/config"
	"github.com/shieldgate/gateway/internal/infra/postgres"
	"github.com/shieldgate/gateway/pkg/crypto"
	"github.com/shieldgate/gateway/pkg/domain/apikey"
	"github.com/shieldgate/gateway/pkg/domain/shared"
	"github.com/shieldgate/gateway/pkg/domain/user"
)

type seedAccount struct {
	email     string
	password  string
	role      string
	keyLabel  string
	rateLimit int // requests per minute; 0 means global default
}

var accounts = []seedAccount{
	{email: "admin@example.com", password: "admin-password-123", role: apikey.RoleAdmin, keyLabel: "admin-key"},
	{email: "client@example.com", password: "client-password-123", role: apikey.RoleClient, keyLabel: "client-key", rateLimit: 120},
}

func main() {
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fail("load configuration", err)
	}

	db, err := postgres.New(&cfg.Database)
	if err != nil {
		fail("connect to database", err)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		fail("ensure schema", err)
	}
	fmt.Println("Connected to database")

	users := postgres.NewUserRepository(db)
	keys := postgres.NewAPIKeyRepository(db)

	for _, acct := range accounts {
		if err := seedOne(ctx, users, keys, acct); err != nil {
			fail("seed "+acct.email, err)
		}
	}

	fmt.Println("\nDone. Store the keys above now; they cannot be recovered later.")
}

func seedOne(ctx context.Context, users user.Repository, keys apikey.Repository, acct seedAccount) error {
	if existing, err := users.GetByEmail(ctx, acct.email); err == nil && existing != nil {
		fmt.Printf("%-24s already exists, skipping\n", acct.email)
		return nil
	} else if err != nil && !shared.IsNotFound(err) {
		return err
	}

	passwordHash, err := crypto.HashSecret(acct.password)
	if err != nil {
		return err
	}

	now := time.Now()
	u := &user.User{
		ID:           shared.NewID(),
		Email:        acct.email,
		PasswordHash: passwordHash,
		Role:         acct.role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Create(ctx, u); err != nil {
		return err
	}

	plaintext, err := crypto.GenerateAPIKey()
	if err != nil {
		return err
	}
	keyHash, err := crypto.HashSecret(plaintext)
	if err != nil {
		return err
	}

	key := apikey.New(shared.NewID(), acct.keyLabel, keyHash, u.ID, acct.role, acct.rateLimit)
	if err := keys.Create(ctx, key); err != nil {
		return err
	}

	fmt.Printf("%-24s role=%-6s password=%s\n", acct.email, acct.role, acct.password)
	fmt.Printf("  api key (%s): %s\n", acct.keyLabel, plaintext)
	return nil
}

func fail(op string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", op, err)
	os.Exit(1)
}
