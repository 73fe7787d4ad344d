package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"spendbook/internal/app"
	"spendbook/internal/config"
	"spendbook/internal/models"
	"spendbook/internal/storage"
	"spendbook/internal/tracker"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	fs.SetOutput(stderr)

	email := fs.String("email", "", "Email")
	name := fs.String("name", "", "Full name (defaults to the part of the email before @)")
	phone := fs.String("phone", "", "Phone number")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	dbPath := fs.String("db", "", "Path to database file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *email == "" || *phone == "" {
		fmt.Fprintln(stdout, "Usage: adduser -email <email> -phone <phone> [-name <name>] [-password <password>] [-db <db_path>]")
		fs.PrintDefaults()
		var missing []string
		if *email == "" {
			missing = append(missing, "email")
		}
		if *phone == "" {
			missing = append(missing, "phone")
		}
		return fmt.Errorf("missing required flags: %s", strings.Join(missing, ", "))
	}

	password := *passwordFlag
	if password == "" {
		fmt.Fprint(stdout, "Password: ")
		var err error
		password, err = app.ReadPassword(stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(stdout) // newline after password input
	}

	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("password cannot be empty")
	}

	if *name == "" {
		*name, _, _ = strings.Cut(*email, "@")
	}

	cfg, err := config.Load(config.EnvFileFromEnv())
	if err != nil {
		return err
	}
	// Accounts always go to a database file.
	cfg.Store = storage.BackendSQLite
	if *dbPath != "" {
		cfg.SQLitePath = *dbPath
	} else if path := os.Getenv("DB_PATH"); path != "" {
		cfg.SQLitePath = path
	}

	ctx := context.Background()
	a, err := app.Open(ctx, cfg, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := a.Service.Signup(ctx, tracker.SignupInput{
		Name:     *name,
		Email:    *email,
		Phone:    *phone,
		Password: password,
	})
	if errors.Is(err, models.ErrDuplicateUser) {
		return fmt.Errorf("user %s already exists", *email)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Fprintf(stdout, "User %s created successfully\n", user.Email)
	return nil
}
