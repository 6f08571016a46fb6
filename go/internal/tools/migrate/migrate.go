package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/liveauction/go/internal/auction/store/postgres"
	"github.com/mcdev12/liveauction/go/internal/dbconfig"
	"github.com/mcdev12/liveauction/go/internal/models"
	"github.com/shopspring/decimal"
)

// ProfileSeed mirrors the profiles JSON file
type ProfileSeed struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Address     string `json:"address"`
	PostalCode  string `json:"postal_code"`
	City        string `json:"city"`
	Country     string `json:"country"`
	PhoneNumber string `json:"phone_number"`
}

func main() {
	var (
		roomName      = flag.String("room", models.DefaultRoomName, "room to create if missing")
		description   = flag.String("description", "", "room description")
		startingPrice = flag.String("starting-price", "10", "starting price of a new room")
		minIncrement  = flag.String("min-increment", "1", "minimum increment of a new room")
		profilesPath  = flag.String("profiles", "", "optional JSON file of profiles to upsert")
	)
	flag.Parse()

	start, err := decimal.NewFromString(*startingPrice)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid starting price: %v\n", err)
		os.Exit(1)
	}
	inc, err := decimal.NewFromString(*minIncrement)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid min increment: %v\n", err)
		os.Exit(1)
	}

	var profiles []ProfileSeed
	if *profilesPath != "" {
		if profiles, err = loadProfiles(*profilesPath); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}

	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv("auction-migrate")
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 1) Schema, triggers included
	if _, err := pool.Exec(ctx, postgres.Schema); err != nil {
		fmt.Fprintf(os.Stderr, "apply schema: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Schema applied")

	// 2) Room
	tag, err := pool.Exec(ctx, `
        INSERT INTO auction_rooms (name, description, starting_price, min_increment, status)
        VALUES ($1, $2, $3, $4, 'active')
        ON CONFLICT (name) DO NOTHING
    `, *roomName, *description, start.String(), inc.String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed room: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Room %q: %d created\n", *roomName, tag.RowsAffected())

	// 3) Profiles
	var upserted, errs int
	for _, p := range profiles {
		_, err := pool.Exec(ctx, `
            INSERT INTO profiles (
              id, email, role, first_name, last_name, address,
              postal_code, city, country, phone_number
            ) VALUES (
              $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
            )
            ON CONFLICT (id) DO UPDATE SET
              email = EXCLUDED.email, role = EXCLUDED.role,
              first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name,
              address = EXCLUDED.address, postal_code = EXCLUDED.postal_code,
              city = EXCLUDED.city, country = EXCLUDED.country,
              phone_number = EXCLUDED.phone_number, updated_at = now()
        `,
			p.ID, p.Email, p.Role, p.FirstName, p.LastName, p.Address,
			p.PostalCode, p.City, p.Country, p.PhoneNumber,
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error upserting profile %s: %v\n", p.ID, err)
			errs++
			continue
		}
		upserted++
	}

	fmt.Printf("Migrate complete: %d profiles upserted, %d errors\n", upserted, errs)
}

func loadProfiles(path string) ([]ProfileSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	var profiles []ProfileSeed
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("unmarshal profiles: %w", err)
	}
	for i, p := range profiles {
		if _, err := uuid.Parse(p.ID); err != nil {
			return nil, fmt.Errorf("profile %d: invalid id %q", i, p.ID)
		}
		switch models.Role(p.Role) {
		case models.RoleAdmin, models.RoleParticipant:
		case "":
			profiles[i].Role = string(models.RoleParticipant)
		default:
			return nil, fmt.Errorf("profile %d: unknown role %q", i, p.Role)
		}
	}
	return profiles, nil
}
