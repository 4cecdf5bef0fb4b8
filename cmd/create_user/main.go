package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"golang.org/x/crypto/bcrypt"

	"meterscan/models"
	"meterscan/process/cliflags"
	"meterscan/process/scandir"
)

// Creates an account, or with --reset changes an existing account's password.
func main() {
	fs := ff.NewFlagSet("create-user")
	var (
		username = fs.StringLong("username", "", "account name")
		password = fs.StringLong("password", "", "password (min 6 characters)")
		roleName = fs.StringLong("role", "user", "role: user or administrator")
		reset    = fs.BoolLong("reset", "reset the password if the user exists")
		dsn      = fs.StringLong("dsn", "", "Postgres DSN (default DB_DSN)")
	)
	err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix(cliflags.EnvPrefix))
	if err == nil && (strings.TrimSpace(*username) == "" || len(*password) < 6) {
		err = fmt.Errorf("--username and a --password of at least 6 characters are required")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	db, err := scandir.OpenDB(*dsn)
	if err != nil {
		log.Fatal(err)
	}
	hpw, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("bcrypt failed: %v", err)
	}

	var existing models.User
	if err := db.Where("username = ?", *username).First(&existing).Error; err == nil {
		if !*reset {
			fmt.Printf("user %s already exists (id=%d)\n", *username, existing.ID)
			return
		}
		if err := db.Model(&existing).Update("hashed_password", hpw).Error; err != nil {
			log.Fatalf("failed to reset password: %v", err)
		}
		if err := models.RevokeUserTokens(db, existing.ID); err != nil {
			log.Printf("WARN: revoke refresh tokens for %s: %v", *username, err)
		}
		fmt.Printf("password reset for %s (id=%d), refresh tokens revoked\n", *username, existing.ID)
		return
	}

	role := models.Role{Name: *roleName}
	if err := db.Where("name = ?", role.Name).FirstOrCreate(&role).Error; err != nil {
		log.Fatalf("failed to ensure role %s: %v", *roleName, err)
	}
	rid := role.ID
	user := models.User{Username: strings.TrimSpace(*username), HashedPassword: hpw, RoleID: &rid}
	if err := db.Create(&user).Error; err != nil {
		log.Fatalf("failed to create user: %v", err)
	}
	fmt.Printf("created user %s (id=%d, role=%s)\n", user.Username, user.ID, role.Name)
}
