package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"gorm.io/gorm"

	"github.com/faxsnap/faxsnap/app/models"
	"github.com/faxsnap/faxsnap/app/repository"
	"github.com/faxsnap/faxsnap/internal/pkg/database"
	"github.com/faxsnap/faxsnap/internal/pkg/env"
)

// apikey creates a user if needed and issues a fresh API key for it. The raw
// key is printed exactly once; only its SHA-256 hash is stored, so a lost key
// means running this again.
func main() {
	email := flag.String("email", "", "user email (required)")
	name := flag.String("name", "", "user name, required when the user does not exist yet")
	password := flag.String("password", "", "user password, required when the user does not exist yet")
	flag.Parse()

	if *email == "" {
		flag.Usage()
		os.Exit(2)
	}

	env.SetupEnvFile()
	database.SetupDatabase()
	repository.InitializeFactory(database.GetDB())
	repo := repository.GetGlobalFactory().GetUserRepository()

	user, err := repo.GetByEmail(*email)
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound):
		if *name == "" || *password == "" {
			log.Fatalf("user %s does not exist, pass -name and -password to create it", *email)
		}
		user, err = models.CreateUser(*name, *email, *password)
		if err != nil {
			log.Fatalf("invalid user: %v", err)
		}
		if err := repo.Create(user); err != nil {
			log.Fatalf("creating user failed: %v", err)
		}
		fmt.Printf("created user %d (%s)\n", user.ID, user.Email)
	default:
		log.Fatalf("user lookup failed: %v", err)
	}

	rawKey, err := user.IssueAPIKey()
	if err != nil {
		log.Fatalf("issuing api key failed: %v", err)
	}
	if err := repo.Update(user); err != nil {
		log.Fatalf("storing api key failed: %v", err)
	}

	fmt.Printf("api key for user %d (%s):\n%s\n", user.ID, user.Email, rawKey)
}
