package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/skulbus/skulbus-backend/internal/models"
	"github.com/skulbus/skulbus-backend/internal/utils"
	"github.com/skulbus/skulbus-backend/pkg/jwt"
)

func main() {
	var (
		role   string
		userID string
		phone  string
		secret string
		expiry time.Duration
	)
	flag.StringVar(&role, "token-role", "", "also issue a development access token for this role (parent, sacco, admin)")
	flag.StringVar(&userID, "token-user", "", "user id for the development token (random when empty)")
	flag.StringVar(&phone, "token-phone", "", "phone claim for the development token")
	flag.StringVar(&secret, "token-secret", "", "sign the token with this JWT_SECRET instead of a freshly generated one")
	flag.DurationVar(&expiry, "token-expiry", 24*time.Hour, "development token lifetime")
	flag.Parse()

	fmt.Println("===========================================")
	fmt.Println("JWT Secret Generator for SkulBus")
	fmt.Println("===========================================")
	fmt.Println()

	secrets, err := utils.GenerateSecrets("JWT_SECRET", "JWT_REFRESH_SECRET")
	if err != nil {
		log.Fatalf("Failed to generate secrets: %v", err)
	}

	fmt.Println("Add these to your .env file:")
	fmt.Println()
	fmt.Printf("JWT_SECRET=%s\n", secrets["JWT_SECRET"])
	fmt.Printf("JWT_REFRESH_SECRET=%s\n", secrets["JWT_REFRESH_SECRET"])
	fmt.Println()

	if role != "" {
		if !models.Role(role).IsValid() {
			log.Fatalf("Unknown role %q", role)
		}
		id := uuid.New()
		if userID != "" {
			if id, err = uuid.Parse(userID); err != nil {
				log.Fatalf("Invalid -token-user: %v", err)
			}
		}
		if secret == "" {
			secret = secrets["JWT_SECRET"]
		}

		token, err := jwt.NewService(secret, secrets["JWT_REFRESH_SECRET"], expiry, expiry).GenerateAccessToken(id, phone, role)
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Printf("Development %s token for %s (expires in %s):\n", role, id, expiry)
		fmt.Println(token)
		fmt.Println()
	}

	fmt.Println("⚠️  IMPORTANT: Keep these secrets safe and never commit them to version control!")
	fmt.Println("===========================================")
}
