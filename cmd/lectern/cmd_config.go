package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/lectern/internal/config"
)

// cmdInit initializes Lectern for first-time use
func cmdInit() error {
	fmt.Println("Lectern - First-Time Setup")
	fmt.Println("===========================")
	fmt.Println()

	// 1. Create directory structure
	fmt.Print("Creating ~/.lectern directory structure... ")
	lecternDir, err := config.EnsureLecternDir()
	if err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	fmt.Println("✓")

	// 2. Create default config if it doesn't exist
	configPath := filepath.Join(lecternDir, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Print("Creating default configuration... ")
		if err := config.SaveLocalConfig(config.DefaultLocalConfig()); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Println("✓")
	} else {
		fmt.Println("Configuration already exists ✓")
	}

	// 3. Generate a launch token secret so tokens survive daemon restarts
	secretsPath := filepath.Join(lecternDir, "secrets.yaml")
	if _, err := os.Stat(secretsPath); os.IsNotExist(err) {
		fmt.Print("Generating launch token secret... ")
		secret, err := generateSecret()
		if err != nil {
			return fmt.Errorf("generate secret: %w", err)
		}
		if err := config.SaveLaunchSecret(secret); err != nil {
			return fmt.Errorf("save secret: %w", err)
		}
		fmt.Println("✓")
	} else {
		fmt.Println("Launch token secret already exists ✓")
	}

	// 4. Summary
	fmt.Println()
	fmt.Println("Setup Complete!")
	fmt.Println("===============")
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. lectern start                      # Start the daemon")
	fmt.Println("  2. lectern packages install <dir>     # Install a SCORM package")
	fmt.Println("  3. lectern register <pkg> <learner>   # Enroll a learner")
	fmt.Println()
	fmt.Println("For agent integration:")
	fmt.Println("  - Configure MCP with the 'lectern mcp' command")

	return nil
}

// generateSecret produces a random hex key for signing launch tokens
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// cmdConfig shows current configuration
func cmdConfig() error {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Println("Lectern Configuration")

	fmt.Println("Daemon:")
	fmt.Printf("  bind: %s:%d\n", cfg.Daemon.Bind, cfg.Daemon.Port)
	fmt.Printf("  log_level: %s\n", cfg.Daemon.LogLevel)

	lecternDir, _ := config.LecternDir()

	fmt.Println("\nStorage:")
	fmt.Printf("  backend: %s\n", cfg.Storage.Backend)
	fmt.Printf("  path: %s\n", cfg.StoragePath(lecternDir))

	fmt.Println("\nContent:")
	fmt.Printf("  path: %s\n", cfg.ContentPath(lecternDir))

	fmt.Println("\nRuntime:")
	if iv := cfg.AutoSaveInterval(); iv > 0 {
		fmt.Printf("  auto_save: every %s\n", iv)
	} else {
		fmt.Println("  auto_save: disabled")
	}

	fmt.Println("\nLaunch:")
	fmt.Printf("  token_ttl: %s\n", cfg.TokenTTL())
	secret, err := config.LoadLaunchSecret()
	if err != nil || len(secret) == 0 {
		fmt.Println("  secret: ephemeral (run 'lectern init' to persist one)")
	} else {
		fmt.Println("  secret: configured ✓")
	}

	if cfg.Webhook.URL != "" {
		fmt.Println("\nWebhook:")
		fmt.Printf("  url: %s\n", cfg.Webhook.URL)
		fmt.Printf("  timeout: %ds\n", cfg.Webhook.TimeoutSeconds)
	}

	fmt.Printf("\nConfig path: %s/config.yaml\n", lecternDir)

	return nil
}
