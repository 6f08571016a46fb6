package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/liveauction/go/internal/auction/store/postgres"
	"github.com/mcdev12/liveauction/go/internal/models"
	"github.com/mcdev12/liveauction/go/internal/sqlutil"
)

var ErrProfileNotFound = errors.New("profile not found")

// Querier defines what the repository needs from the database layer
type Querier interface {
	GetProfile(ctx context.Context, id uuid.UUID) (postgres.ProfileRow, error)
}

// Repository implements profile data access operations
type Repository struct {
	queries Querier
}

func NewRepository(querier Querier) *Repository {
	return &Repository{
		queries: querier,
	}
}

// GetProfile retrieves a profile by user ID
func (r *Repository) GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	row, err := r.queries.GetProfile(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return profileFromDB(row), nil
}

func profileFromDB(row postgres.ProfileRow) *models.Profile {
	role := models.Role(row.Role)
	if role != models.RoleAdmin {
		role = models.RoleParticipant
	}
	return &models.Profile{
		ID:          row.ID,
		Email:       row.Email,
		Role:        role,
		FirstName:   sqlutil.FromSqlString(row.FirstName, ""),
		LastName:    sqlutil.FromSqlString(row.LastName, ""),
		Address:     sqlutil.FromSqlString(row.Address, ""),
		PostalCode:  sqlutil.FromSqlString(row.PostalCode, ""),
		City:        sqlutil.FromSqlString(row.City, ""),
		Country:     sqlutil.FromSqlString(row.Country, ""),
		PhoneNumber: sqlutil.FromSqlString(row.PhoneNumber, ""),
	}
}
