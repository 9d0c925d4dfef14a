// Command adduser creates an account directly in the database, useful for
// bootstrapping an instance without going through the HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/term"

	"fintrack/internal/auth"
	"fintrack/internal/cli"
	"fintrack/internal/core"
)

func main() {
	name := flag.String("name", "", "display name (2-50 characters)")
	email := flag.String("email", "", "email address, unique per instance")
	flag.Parse()

	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	if *name == "" || *email == "" {
		fmt.Fprintln(os.Stderr, "usage: adduser -name <name> -email <email>")
		os.Exit(2)
	}

	password, err := promptPassword()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	if err := core.ValidatePassword(password); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	user := &core.User{
		ID:        uuid.NewString(),
		Name:      *name,
		Email:     core.NormalizeEmail(*email),
		CreatedAt: time.Now().UTC(),
	}
	if err := user.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	user.PasswordHash = hash

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	if err := repo.CreateUser(context.Background(), user); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	fmt.Printf("created user %s (%s)\n", user.Email, user.ID)
}

func promptPassword() (string, error) {
	fmt.Print("Password: ")
	first, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	fmt.Print("Repeat password: ")
	second, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(first), nil
}
