package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/liveauction/go/internal/identity"
	"github.com/mcdev12/liveauction/go/internal/models"
	"github.com/mcdev12/liveauction/go/internal/sqlutil"
)

var _ identity.ProfileReader = (*Store)(nil)

// GetProfile loads a profile for session resolution.
func (s *Store) GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	var (
		p                                  models.Profile
		role                               string
		first, last, address, postal, city sql.NullString
		country, phone                     sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT email, role, first_name, last_name, address, postal_code, city, country, phone_number
		FROM profiles WHERE id = ?`, id.String(),
	).Scan(&p.Email, &role, &first, &last, &address, &postal, &city, &country, &phone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", identity.ErrProfileNotFound, id)
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	p.ID = id
	p.Role = models.Role(role)
	p.FirstName = sqlutil.FromSqlString(first, "")
	p.LastName = sqlutil.FromSqlString(last, "")
	p.Address = sqlutil.FromSqlString(address, "")
	p.PostalCode = sqlutil.FromSqlString(postal, "")
	p.City = sqlutil.FromSqlString(city, "")
	p.Country = sqlutil.FromSqlString(country, "")
	p.PhoneNumber = sqlutil.FromSqlString(phone, "")
	return &p, nil
}

// PutProfile inserts or replaces a profile. Used to seed local databases.
func (s *Store) PutProfile(ctx context.Context, p models.Profile) error {
	role := p.Role
	if role == "" {
		role = models.RoleParticipant
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, email, role, first_name, last_name, address, postal_code, city, country, phone_number)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			email = excluded.email, role = excluded.role,
			first_name = excluded.first_name, last_name = excluded.last_name,
			address = excluded.address, postal_code = excluded.postal_code,
			city = excluded.city, country = excluded.country, phone_number = excluded.phone_number`,
		p.ID.String(), p.Email, string(role),
		sqlutil.ToNonEmptySqlString(p.FirstName),
		sqlutil.ToNonEmptySqlString(p.LastName),
		sqlutil.ToNonEmptySqlString(p.Address),
		sqlutil.ToNonEmptySqlString(p.PostalCode),
		sqlutil.ToNonEmptySqlString(p.City),
		sqlutil.ToNonEmptySqlString(p.Country),
		sqlutil.ToNonEmptySqlString(p.PhoneNumber),
	)
	if err != nil {
		return classify("put profile", err)
	}
	return nil
}
