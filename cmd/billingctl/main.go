package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/tmplstore/billing/internal/cli"
	"github.com/tmplstore/billing/internal/config"
	"github.com/tmplstore/billing/internal/session"
	"github.com/tmplstore/billing/pkg/crypto"
)

func main() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel)

	enc, err := encryptor(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	store := session.NewFileStore(cfg.CredentialsPath, enc, logger)
	app := cli.NewApp(cfg, store, os.Stdout, logger)

	if err := cli.NewRootCommand(app).Execute(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogger(level logrus.Level) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	// The CLI prints its own progress; only surface problems unless asked.
	if level > logrus.WarnLevel && os.Getenv("LOG_LEVEL") == "" {
		level = logrus.WarnLevel
	}
	logger.SetLevel(level)
	return logger
}

func encryptor(cfg *config.Config) (*crypto.Encryptor, error) {
	if cfg.EncryptionKey != "" {
		return crypto.NewEncryptor(cfg.EncryptionKey)
	}
	if pass := os.Getenv("BILLINGCTL_PASSPHRASE"); pass != "" {
		return crypto.NewEncryptorFromPassphrase(pass)
	}
	return nil, fmt.Errorf("ENCRYPTION_KEY (32 bytes) or BILLINGCTL_PASSPHRASE is required to protect the stored credential")
}
