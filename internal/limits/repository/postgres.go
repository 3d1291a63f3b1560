package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"iqc-platform/internal/limits/domain"
	qcrundomain "iqc-platform/internal/qcrun/domain"
)

// Statuses counted as in-control for rolling windows. Gate mode produces
// approved terminal points, legacy mode produces accepted ones.
const includedStatuses = `('accepted', 'approved')`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a limits repository that uses the given db
// for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GroupExists reports whether any run was recorded for the group.
func (r *PostgresRepository) GroupExists(ctx context.Context, group qcrundomain.RunGroup) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM qc_runs
			WHERE device_code = $1 AND test_code = $2 AND level = $3 AND lot_code = $4
		)`,
		group.DeviceCode, group.TestCode, group.Level, group.LotCode).Scan(&exists)
	return exists, err
}

// CurrentLimits returns the group's current limits version, or nil if the
// group has none. It returns an error only for database failures.
func (r *PostgresRepository) CurrentLimits(ctx context.Context, group qcrundomain.RunGroup) (*domain.LimitsVersion, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, device_code, test_code, level, lot_code, mean, sd, cv,
		       version, is_current, source, created_by, created_at
		FROM limits_versions
		WHERE device_code = $1 AND test_code = $2 AND level = $3 AND lot_code = $4
		  AND is_current`,
		group.DeviceCode, group.TestCode, group.Level, group.LotCode)
	v, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

// ListVersions returns the group's limits versions, newest first.
func (r *PostgresRepository) ListVersions(ctx context.Context, group qcrundomain.RunGroup) ([]*domain.LimitsVersion, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, device_code, test_code, level, lot_code, mean, sd, cv,
		       version, is_current, source, created_by, created_at
		FROM limits_versions
		WHERE device_code = $1 AND test_code = $2 AND level = $3 AND lot_code = $4
		ORDER BY version DESC`,
		group.DeviceCode, group.TestCode, group.Level, group.LotCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.LimitsVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// InsertVersion stores v as the group's new current version inside one
// transaction: the previous current version is demoted and v gets the next
// version number.
func (r *PostgresRepository) InsertVersion(ctx context.Context, v *domain.LimitsVersion) error {
	if err := v.Validate(); err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE limits_versions SET is_current = FALSE
		WHERE device_code = $1 AND test_code = $2 AND level = $3 AND lot_code = $4
		  AND is_current`,
		v.DeviceCode, v.TestCode, v.Level, v.LotCode)
	if err != nil {
		return err
	}

	var next int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) + 1 FROM limits_versions
		WHERE device_code = $1 AND test_code = $2 AND level = $3 AND lot_code = $4`,
		v.DeviceCode, v.TestCode, v.Level, v.LotCode).Scan(&next)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO limits_versions
			(id, device_code, test_code, level, lot_code, mean, sd, cv,
			 version, is_current, source, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE, $10, $11)`,
		v.ID, v.DeviceCode, v.TestCode, v.Level, v.LotCode,
		v.Mean, v.SD, v.CV, next, v.Source, v.CreatedBy)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	v.Version = next
	v.IsCurrent = true
	return nil
}

// EligibleRecent returns up to limit most recent in-control points for the
// group, newest first. Points whose violation list contains any of the given
// rule codes are skipped.
func (r *PostgresRepository) EligibleRecent(ctx context.Context, group qcrundomain.RunGroup, limit int, excludeRules []string) ([]domain.SamplePoint, error) {
	excluded, err := json.Marshal(excludeRules)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT value, measured_at FROM qc_runs
		WHERE device_code = $1 AND test_code = $2 AND level = $3 AND lot_code = $4
		  AND status IN `+includedStatuses+`
		  AND NOT EXISTS (
			SELECT 1 FROM jsonb_array_elements(violations) v
			WHERE v->>'ruleCode' IN (SELECT jsonb_array_elements_text($5::jsonb))
		  )
		ORDER BY measured_at DESC
		LIMIT $6`,
		group.DeviceCode, group.TestCode, group.Level, group.LotCode,
		string(excluded), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SamplePoint
	for rows.Next() {
		var p domain.SamplePoint
		if err := rows.Scan(&p.Value, &p.MeasuredAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// IncludedCount counts the group's in-control points before rule exclusion.
func (r *PostgresRepository) IncludedCount(ctx context.Context, group qcrundomain.RunGroup) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM qc_runs
		WHERE device_code = $1 AND test_code = $2 AND level = $3 AND lot_code = $4
		  AND status IN `+includedStatuses,
		group.DeviceCode, group.TestCode, group.Level, group.LotCode).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVersion(row rowScanner) (*domain.LimitsVersion, error) {
	var v domain.LimitsVersion
	err := row.Scan(&v.ID, &v.DeviceCode, &v.TestCode, &v.Level, &v.LotCode,
		&v.Mean, &v.SD, &v.CV, &v.Version, &v.IsCurrent, &v.Source, &v.CreatedBy, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
