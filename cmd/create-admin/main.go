// Command create-admin provisions an account with an elevated role. It is
// the only way to create the first ADMIN, since sign-up always assigns USER.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/disasterwatch/disasterwatch/internal/config"
	"github.com/disasterwatch/disasterwatch/internal/database"
	"github.com/disasterwatch/disasterwatch/internal/logging"
	"github.com/disasterwatch/disasterwatch/internal/models"
	"github.com/disasterwatch/disasterwatch/internal/users"
)

func main() {
	name := flag.String("name", "Administrator", "display name")
	email := flag.String("email", "", "account email (required)")
	password := flag.String("password", "", "account password; defaults to $ADMIN_PASSWORD")
	role := flag.String("role", string(models.RoleAdmin), "role to assign: USER, MODERATOR or ADMIN")
	flag.Parse()

	if err := run(*name, *email, *password, *role); err != nil {
		fmt.Fprintln(os.Stderr, "create-admin:", err)
		os.Exit(1)
	}
}

func run(name, email, password, rawRole string) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

	if password == "" {
		password = os.Getenv("ADMIN_PASSWORD")
	}
	if email == "" || password == "" {
		return errors.New("-email and -password (or ADMIN_PASSWORD) are required")
	}
	role, err := models.ParseRole(rawRole)
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.Connect(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db, cfg.Database.MigrationsDir, logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	svc := users.NewService(database.NewPostgresUserRepository(db), nil, nil, logger)
	user, err := svc.Provision(ctx, users.SignUp{Name: name, Email: email, Password: password}, role)
	if err != nil {
		return err
	}

	fmt.Printf("created %s account %s (%s)\n", user.Role, user.Email, user.ID)
	return nil
}
