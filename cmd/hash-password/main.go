package main

import (
	"flag"
	"fmt"
	"os"
	"syscall"

	"github.com/stemsi/classbook/internal/config"
	"github.com/stemsi/classbook/internal/logger"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

const minPasswordLen = 8

func main() {
	cost := flag.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	// ─── CLI Input ─────────────────────────────────────────────────────
	fmt.Fprintf(os.Stderr, "=== Admin password for %q ===\n", cfg.AdminUsername)

	password, err := readPassword("Enter Password: ")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read password")
	}
	if len(password) < minPasswordLen {
		fmt.Fprintf(os.Stderr, "Error: Password must be at least %d characters\n", minPasswordLen)
		os.Exit(1)
	}

	confirm, err := readPassword("Confirm Password: ")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read password")
	}
	if confirm != password {
		fmt.Fprintln(os.Stderr, "Error: Passwords do not match")
		os.Exit(1)
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	hash, err := bcrypt.GenerateFromPassword([]byte(password), *cost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	// Single quotes stop godotenv from expanding the $ segments of the hash.
	fmt.Fprintln(os.Stderr, "\nAdd this line to your .env:")
	fmt.Printf("ADMIN_PASSWORD_HASH='%s'\n", hash)
}

func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // Newline after password input
	if err != nil {
		return "", err
	}
	return string(b), nil
}
