package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"iqc-platform/internal/qcrun/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a run repository that uses the given db for
// persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the run.
func (r *PostgresRepository) Create(ctx context.Context, run *domain.QcRun) error {
	if err := run.Validate(); err != nil {
		return err
	}
	violations := run.Violations
	if len(violations) == 0 {
		violations = []byte("[]")
	}
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO qc_runs
			(id, device_code, test_code, level, lot_code, value, z, side,
			 status, auto_result, violations, note, reviewed_by, measured_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		run.ID, run.Group.DeviceCode, run.Group.TestCode, run.Group.Level, run.Group.LotCode,
		run.Value, nullFloat(run.Z), string(run.Side),
		string(run.Status), string(run.AutoResult), string(violations),
		run.Note, run.ReviewedBy, run.MeasuredAt, now)
	if err != nil {
		return err
	}
	run.CreatedAt = now
	return nil
}

const runColumns = `id, device_code, test_code, level, lot_code, value, z, side,
	status, auto_result, violations, note, reviewed_by, measured_at, created_at`

// GetByID returns the run for id, or nil if not found. It returns an error
// only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.QcRun, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM qc_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return run, nil
}

// List returns runs matching the filter, newest first.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*domain.QcRun, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("device_code", filter.DeviceCode)
	add("test_code", filter.TestCode)
	add("level", filter.Level)
	add("lot_code", filter.LotCode)
	add("status", filter.Status)

	query := `SELECT ` + runColumns + ` FROM qc_runs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY measured_at DESC LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.QcRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// HistoryBefore returns up to limit points of the group measured strictly
// before the given instant, newest first.
func (r *PostgresRepository) HistoryBefore(ctx context.Context, group domain.RunGroup, before time.Time, limit int) ([]domain.QcDataPoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, value, z, side, measured_at, level FROM qc_runs
		WHERE device_code = $1 AND test_code = $2 AND level = $3 AND lot_code = $4
		  AND measured_at < $5
		ORDER BY measured_at DESC
		LIMIT $6`,
		group.DeviceCode, group.TestCode, group.Level, group.LotCode, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPoints(rows)
}

// PeersAt returns points from the group's other levels measured at exactly the
// given instant.
func (r *PostgresRepository) PeersAt(ctx context.Context, group domain.RunGroup, at time.Time) ([]domain.QcDataPoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, value, z, side, measured_at, level FROM qc_runs
		WHERE device_code = $1 AND test_code = $2 AND lot_code = $3
		  AND level <> $4 AND measured_at = $5`,
		group.DeviceCode, group.TestCode, group.LotCode, group.Level, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPoints(rows)
}

// UpdateStatus transitions the run's review state.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status domain.RunStatus, note, reviewedBy string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE qc_runs SET status = $2, note = $3, reviewed_by = $4
		WHERE id = $1`,
		id, string(status), note, reviewedBy)
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

func scanRun(row rowScanner) (*domain.QcRun, error) {
	var (
		run        domain.QcRun
		z          sql.NullFloat64
		side       string
		status     string
		auto       string
		violations string
	)
	err := row.Scan(&run.ID,
		&run.Group.DeviceCode, &run.Group.TestCode, &run.Group.Level, &run.Group.LotCode,
		&run.Value, &z, &side, &status, &auto, &violations,
		&run.Note, &run.ReviewedBy, &run.MeasuredAt, &run.CreatedAt)
	if err != nil {
		return nil, err
	}
	run.Z = floatPtr(z)
	run.Side = domain.Side(side)
	run.Status = domain.RunStatus(status)
	run.AutoResult = domain.AutoResult(auto)
	run.Violations = []byte(violations)
	return &run, nil
}

func scanPoints(rows *sql.Rows) ([]domain.QcDataPoint, error) {
	var out []domain.QcDataPoint
	for rows.Next() {
		var (
			p    domain.QcDataPoint
			z    sql.NullFloat64
			side string
		)
		if err := rows.Scan(&p.ID, &p.Value, &z, &side, &p.Timestamp, &p.LevelID); err != nil {
			return nil, err
		}
		p.Z = floatPtr(z)
		p.Side = domain.Side(side)
		out = append(out, p)
	}
	return out, rows.Err()
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	f := n.Float64
	return &f
}
