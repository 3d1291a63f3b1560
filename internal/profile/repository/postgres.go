package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"iqc-platform/internal/profile/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a profile repository that uses the given db
// for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateProfile persists the profile document.
func (r *PostgresRepository) CreateProfile(ctx context.Context, p *domain.StoredProfile) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rules_profiles (id, name, config_json, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)`,
		p.ID, p.Name, string(p.ConfigJSON), now)
	if err != nil {
		return err
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

// UpdateProfile replaces the profile's name and config document.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, p *domain.StoredProfile) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE rules_profiles SET name = $2, config_json = $3, updated_at = $4
		WHERE id = $1`,
		p.ID, p.Name, string(p.ConfigJSON), now)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	p.UpdatedAt = now
	return nil
}

// GetProfile returns the stored profile for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetProfile(ctx context.Context, id string) (*domain.StoredProfile, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, config_json, created_at, updated_at
		FROM rules_profiles WHERE id = $1`, id)
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// ListProfiles returns all stored profiles, newest first.
func (r *PostgresRepository) ListProfiles(ctx context.Context) ([]*domain.StoredProfile, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, config_json, created_at, updated_at
		FROM rules_profiles ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.StoredProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateBinding persists the binding.
func (r *PostgresRepository) CreateBinding(ctx context.Context, b *domain.ProfileBinding) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profile_bindings (id, profile_id, scope_type, test_id, device_id, active_from, active_to)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.ID, b.ProfileID, string(b.ScopeType),
		nullString(b.TestID), nullString(b.DeviceID),
		nullTime(b.ActiveFrom), nullTime(b.ActiveTo))
	return err
}

// ActiveBindings returns bindings whose scope could govern the device/test and
// whose time window contains the given instant. The resolver ranks them.
func (r *PostgresRepository) ActiveBindings(ctx context.Context, deviceID, testID string, at time.Time) ([]domain.ProfileBinding, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, profile_id, scope_type, test_id, device_id, active_from, active_to
		FROM profile_bindings
		WHERE (scope_type = 'global'
			OR (scope_type = 'device' AND device_id = $1)
			OR (scope_type = 'test' AND test_id = $2)
			OR (scope_type = 'device_test' AND device_id = $1 AND test_id = $2))
		  AND (active_from IS NULL OR active_from <= $3)
		  AND (active_to IS NULL OR active_to > $3)`,
		deviceID, testID, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ProfileBinding
	for rows.Next() {
		var (
			binding          domain.ProfileBinding
			scope            string
			testID, deviceID sql.NullString
			from, to         sql.NullTime
		)
		if err := rows.Scan(&binding.ID, &binding.ProfileID, &scope, &testID, &deviceID, &from, &to); err != nil {
			return nil, err
		}
		binding.ScopeType = domain.ScopeType(scope)
		binding.TestID = testID.String
		binding.DeviceID = deviceID.String
		binding.ActiveFrom = timePtr(from)
		binding.ActiveTo = timePtr(to)
		out = append(out, binding)
	}
	return out, rows.Err()
}

// DeleteBinding removes the binding by id.
func (r *PostgresRepository) DeleteBinding(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM profile_bindings WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row rowScanner) (*domain.StoredProfile, error) {
	var (
		p      domain.StoredProfile
		config string
	)
	if err := row.Scan(&p.ID, &p.Name, &config, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.ConfigJSON = []byte(config)
	return &p, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}
