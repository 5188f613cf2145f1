// Package catalog persists located fingerprints in SQLite so a surveyed site
// can be reused across runs. The store is the durable backing of the
// nearest-neighbour search: load the catalog, rank it against a live
// fingerprint, feed the winners to the estimator.
package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/waypost-data/radioloc/internal/fingerprint"
	"github.com/waypost-data/radioloc/internal/geom"
)

// Store wraps the SQLite handle. Schema management lives in migrate.go.
type Store struct {
	*sql.DB
}

// Open opens (creating if necessary) the catalog database at path.
// Run MigrateUp before first use.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("catalog: opening %s: %w", path, err)
	}
	// Readings reference fingerprints with ON DELETE CASCADE.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: enabling foreign keys: %w", err)
	}
	return &Store{db}, nil
}

// Save inserts a located fingerprint and its readings in one transaction and
// returns the record id. A fingerprint without an id gets a fresh UUID; an
// existing id is replaced wholesale.
func (s *Store) Save(ctx context.Context, lf *fingerprint.LocatedFingerprint) (string, error) {
	if lf == nil || lf.Fingerprint == nil || lf.Fingerprint.Len() == 0 {
		return "", fmt.Errorf("catalog: cannot save a fingerprint without readings")
	}
	dim := lf.Position.Dim()
	if dim != 2 && dim != 3 {
		return "", fmt.Errorf("catalog: position must be 2D or 3D, got %dD", dim)
	}

	id := lf.ID
	if id == "" {
		id = uuid.NewString()
	}

	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("catalog: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fingerprints WHERE id = ?`, id); err != nil {
		return "", fmt.Errorf("catalog: replacing fingerprint %s: %w", id, err)
	}

	var z sql.NullFloat64
	if dim == 3 {
		z = sql.NullFloat64{Float64: lf.Position[2], Valid: true}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO fingerprints (id, dim, x, y, z) VALUES (?, ?, ?, ?, ?)`,
		id, dim, lf.Position[0], lf.Position[1], z); err != nil {
		return "", fmt.Errorf("catalog: inserting fingerprint: %w", err)
	}

	for _, srcID := range lf.Fingerprint.Sources() {
		r, _ := lf.Fingerprint.Reading(srcID)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO fingerprint_readings
				(fingerprint_id, source_id, distance, distance_std_dev, rssi, rssi_std_dev)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, string(srcID),
			nullIf(r.Distance, r.HasDistance),
			nullIf(r.DistanceStdDev, r.HasDistance && r.DistanceStdDev > 0),
			nullIf(r.RSSI, r.HasRSSI),
			nullIf(r.RSSIStdDev, r.HasRSSI && r.RSSIStdDev > 0)); err != nil {
			return "", fmt.Errorf("catalog: inserting reading for %s: %w", srcID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("catalog: committing: %w", err)
	}
	return id, nil
}

// Get loads one located fingerprint by id. Returns sql.ErrNoRows when absent.
func (s *Store) Get(ctx context.Context, id string) (*fingerprint.LocatedFingerprint, error) {
	row := s.QueryRowContext(ctx, `SELECT id, dim, x, y, z FROM fingerprints WHERE id = ?`, id)
	lf, err := scanFingerprint(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadReadings(ctx, lf); err != nil {
		return nil, err
	}
	return lf, nil
}

// All loads the whole catalog ordered by insertion time, oldest first.
func (s *Store) All(ctx context.Context) ([]*fingerprint.LocatedFingerprint, error) {
	rows, err := s.QueryContext(ctx, `SELECT id, dim, x, y, z FROM fingerprints ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("catalog: listing fingerprints: %w", err)
	}
	defer rows.Close()

	var out []*fingerprint.LocatedFingerprint
	for rows.Next() {
		lf, err := scanFingerprint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterating fingerprints: %w", err)
	}
	for _, lf := range out {
		if err := s.loadReadings(ctx, lf); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Delete removes a fingerprint and, via cascade, its readings.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.ExecContext(ctx, `DELETE FROM fingerprints WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("catalog: deleting %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("catalog: deleting %s: %w", id, err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Count returns the number of stored fingerprints.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.QueryRowContext(ctx, `SELECT COUNT(*) FROM fingerprints`).Scan(&n); err != nil {
		return 0, fmt.Errorf("catalog: counting fingerprints: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanFingerprint reads the position columns; readings are loaded separately.
func scanFingerprint(row rowScanner) (*fingerprint.LocatedFingerprint, error) {
	var (
		id   string
		dim  int
		x, y float64
		z    sql.NullFloat64
	)
	if err := row.Scan(&id, &dim, &x, &y, &z); err != nil {
		return nil, err
	}
	pos := geom.Point{x, y}
	if dim == 3 {
		pos = append(pos, z.Float64)
	}
	return &fingerprint.LocatedFingerprint{ID: id, Position: pos}, nil
}

func (s *Store) loadReadings(ctx context.Context, lf *fingerprint.LocatedFingerprint) error {
	rows, err := s.QueryContext(ctx, `
		SELECT source_id, distance, distance_std_dev, rssi, rssi_std_dev
		FROM fingerprint_readings WHERE fingerprint_id = ? ORDER BY source_id`, lf.ID)
	if err != nil {
		return fmt.Errorf("catalog: loading readings for %s: %w", lf.ID, err)
	}
	defer rows.Close()

	var readings []fingerprint.Reading
	for rows.Next() {
		var (
			srcID                  string
			dist, distSD, rssi, sd sql.NullFloat64
		)
		if err := rows.Scan(&srcID, &dist, &distSD, &rssi, &sd); err != nil {
			return fmt.Errorf("catalog: scanning reading: %w", err)
		}
		readings = append(readings, fingerprint.Reading{
			Source:         fingerprint.SourceID(srcID),
			Distance:       dist.Float64,
			HasDistance:    dist.Valid,
			DistanceStdDev: distSD.Float64,
			RSSI:           rssi.Float64,
			HasRSSI:        rssi.Valid,
			RSSIStdDev:     sd.Float64,
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("catalog: iterating readings for %s: %w", lf.ID, err)
	}

	fp, err := fingerprint.New(readings)
	if err != nil {
		return fmt.Errorf("catalog: rebuilding fingerprint %s: %w", lf.ID, err)
	}
	lf.Fingerprint = fp
	return nil
}

// nullIf returns a NULL-able column value.
func nullIf(v float64, valid bool) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: valid}
}
