// seed inserts development sample data for local testing.
// Idempotent: skips inserts if the dev profile already exists.
package main

import (
	"context"
	"log"
	"time"

	"iqc-platform/internal/config"
	"iqc-platform/internal/db"
	limitsdomain "iqc-platform/internal/limits/domain"
	limitsrepo "iqc-platform/internal/limits/repository"
	profiledomain "iqc-platform/internal/profile/domain"
	profilerepo "iqc-platform/internal/profile/repository"
)

const (
	devProfileID = "dev-profile-001"
	devBindingID = "dev-binding-001"
	devLimitsID  = "dev-limits-001"
)

// devProfileConfig enables the common rule set with 2-2s across levels.
const devProfileConfig = `{
  "windowSizeDefault": 12,
  "rules": {
    "1-3s": {"enabled": true, "severity": "fail", "scope": "within_level"},
    "1-2s": {"enabled": true, "severity": "warn", "scope": "within_level"},
    "2-2s": {"enabled": true, "severity": "fail", "scope": "within_level", "withinRunAcrossLevels": true},
    "R-4s": {"enabled": true, "severity": "fail", "scope": "across_levels", "requiredLevels": "2", "deltaSd": 4},
    "4-1s": {"enabled": true, "severity": "fail", "scope": "within_level"},
    "10x":  {"enabled": true, "severity": "fail", "scope": "within_level"},
    "7T":   {"enabled": true, "severity": "warn", "scope": "within_level"}
  }
}`

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	profiles := profilerepo.NewPostgresRepository(conn)
	limits := limitsrepo.NewPostgresRepository(conn)

	existing, err := profiles.GetProfile(ctx, devProfileID)
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	if existing != nil {
		log.Print("seed: dev data already present, nothing to do")
		return
	}

	stored := &profiledomain.StoredProfile{
		ID:         devProfileID,
		Name:       "dev-default",
		ConfigJSON: []byte(devProfileConfig),
	}
	if err := stored.Validate(); err != nil {
		log.Fatalf("seed: dev profile invalid: %v", err)
	}
	if err := profiles.CreateProfile(ctx, stored); err != nil {
		log.Fatalf("seed: create profile: %v", err)
	}

	from := time.Now().UTC().Add(-24 * time.Hour)
	binding := &profiledomain.ProfileBinding{
		ID:         devBindingID,
		ProfileID:  devProfileID,
		ScopeType:  profiledomain.ScopeTypeGlobal,
		ActiveFrom: &from,
	}
	if err := profiles.CreateBinding(ctx, binding); err != nil {
		log.Fatalf("seed: create binding: %v", err)
	}

	version := &limitsdomain.LimitsVersion{
		ID:         devLimitsID,
		DeviceCode: "analyzer-1",
		TestCode:   "GLU",
		Level:      "L1",
		LotCode:    "LOT-42",
		Mean:       100,
		SD:         2,
		CV:         2,
		Source:     "manual",
		CreatedBy:  "seed",
	}
	if err := limits.InsertVersion(ctx, version); err != nil {
		log.Fatalf("seed: create limits: %v", err)
	}

	log.Print("seed: dev profile, binding, and limits inserted")
}
