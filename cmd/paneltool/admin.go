package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/PhilHem/gamepanel/backend/config"
	"github.com/PhilHem/gamepanel/backend/database"
	"github.com/PhilHem/gamepanel/backend/models"
)

func runAdmin(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || (args[0] != "grant" && args[0] != "revoke") {
		fmt.Fprintln(stderr, "usage: paneltool admin grant|revoke -email <email>")
		return 2
	}
	action := args[0]

	fs := flag.NewFlagSet("admin "+action, flag.ContinueOnError)
	fs.SetOutput(stderr)
	email := fs.String("email", "", "email of the user")
	configPath := fs.String("config", "config.yaml", "path to the YAML config")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	if *email == "" {
		fmt.Fprintln(stderr, "-email is required")
		return 2
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return 1
	}
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to open database: %v\n", err)
		return 1
	}
	users := database.NewUsers(db)

	role := models.RoleAdmin
	if action == "revoke" {
		role = models.RoleUser
	}

	user, err := users.FindByEmail(ctx, *email)
	if errors.Is(err, database.ErrUserNotFound) {
		fmt.Fprintln(stderr, "User not found.")
		return 1
	} else if err != nil {
		fmt.Fprintf(stderr, "failed to look up user: %v\n", err)
		return 1
	}
	if user.Role == role {
		if role == models.RoleAdmin {
			fmt.Fprintln(stderr, "User is already an admin.")
		} else {
			fmt.Fprintln(stderr, "User is not an admin.")
		}
		return 1
	}

	if _, err := users.SetRole(ctx, user.Email, role); err != nil {
		fmt.Fprintf(stderr, "failed to update role: %v\n", err)
		return 1
	}
	if role == models.RoleAdmin {
		fmt.Fprintf(stdout, "%s is now an admin.\n", user.Email)
	} else {
		fmt.Fprintf(stdout, "%s is no longer an admin.\n", user.Email)
	}
	return 0
}
