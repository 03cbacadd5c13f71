package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SignSample is a recorded example of a custom sign: the classifier's
// feature vector for one capture.
type SignSample struct {
	ID        string
	Label     string
	Features  []float64
	CreatedAt time.Time
}

// SignRepository stores custom sign samples.
type SignRepository struct {
	db *sql.DB
}

// Signs returns the sign sample repository for this store.
func (s *Store) Signs() *SignRepository {
	return &SignRepository{db: s.db}
}

// Create inserts a sample.
func (r *SignRepository) Create(sample *SignSample) error {
	sample.CreatedAt = time.Now()

	features, err := json.Marshal(sample.Features)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}

	_, err = r.db.Exec(
		`INSERT INTO sign_samples (id, label, features, created_at) VALUES (?, ?, ?, ?)`,
		sample.ID, sample.Label, string(features), sample.CreatedAt,
	)
	return err
}

// GetByID retrieves a sample by its ID.
func (r *SignRepository) GetByID(id string) (*SignSample, error) {
	sample, err := scanSignSample(r.db.QueryRow(
		`SELECT id, label, features, created_at FROM sign_samples WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sample, nil
}

// List returns all samples in recording order.
func (r *SignRepository) List() ([]*SignSample, error) {
	return r.query(`SELECT id, label, features, created_at FROM sign_samples ORDER BY created_at, rowid`)
}

// ListByLabel returns the samples of one label in recording order.
func (r *SignRepository) ListByLabel(label string) ([]*SignSample, error) {
	return r.query(`SELECT id, label, features, created_at FROM sign_samples WHERE label = ? ORDER BY created_at, rowid`, label)
}

// Delete removes a sample by its ID.
func (r *SignRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM sign_samples WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByLabel removes every sample of label and returns how many were
// removed.
func (r *SignRepository) DeleteByLabel(label string) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM sign_samples WHERE label = ?`, label)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *SignRepository) query(query string, args ...any) ([]*SignSample, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []*SignSample
	for rows.Next() {
		sample, err := scanSignSample(rows)
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}

func scanSignSample(row scanner) (*SignSample, error) {
	s := &SignSample{}
	var features string

	if err := row.Scan(&s.ID, &s.Label, &features, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(features), &s.Features); err != nil {
		return nil, fmt.Errorf("decode features of %s: %w", s.ID, err)
	}
	return s, nil
}
