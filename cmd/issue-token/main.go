package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"ghostmail/internal/auth"
	"ghostmail/internal/config"
)

// main 为付费账号签发访问令牌，有效期即账号的付费时长。
func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: issue-token <account-id|new> <duration, e.g. 720h> [user|moderator]")
		os.Exit(1)
	}

	accountID := os.Args[1]
	if accountID == "new" {
		accountID = uuid.NewString()
	}

	duration, err := time.ParseDuration(os.Args[2])
	if err != nil || duration <= 0 {
		fmt.Printf("Invalid duration: %s\n", os.Args[2])
		os.Exit(1)
	}

	role := auth.RoleUser
	if len(os.Args) >= 4 {
		switch os.Args[3] {
		case auth.RoleUser, auth.RoleModerator:
			role = os.Args[3]
		default:
			fmt.Printf("Unknown role: %s\n", os.Args[3])
			os.Exit(1)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	verifier := auth.NewVerifier(cfg.Auth.Secret, cfg.Auth.Issuer, time.Now)
	until := time.Now().Add(duration)
	token, err := verifier.Issue(accountID, role, until)
	if err != nil {
		fmt.Printf("Failed to issue token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Account token issued successfully!\n")
	fmt.Printf("  Account: %s\n", accountID)
	fmt.Printf("  Role:    %s\n", role)
	fmt.Printf("  Until:   %s\n", until.UTC().Format(time.RFC3339))
	fmt.Printf("  Token:   %s\n", token)
}
