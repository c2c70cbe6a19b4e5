package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/toanlab/lms-backend/internal/config"
	"github.com/toanlab/lms-backend/internal/database"
	"github.com/toanlab/lms-backend/internal/logger"
	"github.com/toanlab/lms-backend/internal/model"
	"github.com/toanlab/lms-backend/internal/service"
)

func main() {
	var (
		userID   string
		name     string
		role     string
		deviceID string
	)
	flag.StringVar(&userID, "user", "", "user id (email)")
	flag.StringVar(&name, "name", "", "display name")
	flag.StringVar(&role, "role", string(model.RoleStudent), "student, teacher or admin")
	flag.StringVar(&deviceID, "device", "cli", "device id bound to the session")
	flag.Parse()

	if userID == "" {
		fmt.Fprintln(os.Stderr, "Error: -user is required")
		flag.Usage()
		os.Exit(2)
	}
	r := model.Role(role)
	if !r.Valid() {
		fmt.Fprintf(os.Stderr, "Error: unknown role %q\n", role)
		os.Exit(2)
	}
	if name == "" {
		name = userID
	}

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Issue Token ───────────────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb)
	token, claims, err := authService.IssueToken(ctx, userID, name, r, deviceID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to issue token")
	}

	fmt.Println("=== Token issued ===")
	fmt.Printf("User:    %s (%s)\n", claims.UserID, claims.Role)
	fmt.Printf("Session: %s\n", claims.ID)
	fmt.Printf("Expires: %s\n", claims.ExpiresAt.Time.Format(time.RFC3339))
	fmt.Println()
	fmt.Println(token)
}
