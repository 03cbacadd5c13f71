package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/hasta/internal/detector"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Source identifies where a recognition's frames came from.
type Source string

const (
	// SourceCamera is a live camera burst.
	SourceCamera Source = "camera"
	// SourceFiles is a directory of image files.
	SourceFiles Source = "files"
)

// Recognition is one classified capture.
type Recognition struct {
	ID         string
	Label      string
	Score      float64
	Source     Source
	FrameCount int
	Indices    []int
	CreatedAt  time.Time
}

// ScoreEntry is one label's score and its rank, starting at 1.
type ScoreEntry struct {
	Rank  int
	Label string
	Score float64
}

// FrameRecord is a sampled frame of a recognition.
type FrameRecord struct {
	Step        int
	SourceIndex int
	Visibility  detector.Visibility
	Landmarks   detector.FrameLandmarks
}

// RecognitionRepository stores recognitions with their scores and frames.
type RecognitionRepository struct {
	db *sql.DB
}

// Recognitions returns the recognition repository for this store.
func (s *Store) Recognitions() *RecognitionRepository {
	return &RecognitionRepository{db: s.db}
}

// Create inserts a recognition, its ranked scores and its frames in a
// single transaction.
func (r *RecognitionRepository) Create(rec *Recognition, scores []ScoreEntry, frames []FrameRecord) error {
	rec.CreatedAt = time.Now()

	indices, err := json.Marshal(rec.Indices)
	if err != nil {
		return fmt.Errorf("encode indices: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO recognitions (id, label, score, source, frame_count, indices, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Label, rec.Score, string(rec.Source), rec.FrameCount, string(indices), rec.CreatedAt,
	)
	if err != nil {
		return err
	}

	scoreStmt, err := tx.Prepare(`INSERT INTO recognition_scores (recognition_id, rank, label, score) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer scoreStmt.Close()

	for _, s := range scores {
		if _, err := scoreStmt.Exec(rec.ID, s.Rank, s.Label, s.Score); err != nil {
			return err
		}
	}

	frameStmt, err := tx.Prepare(
		`INSERT INTO recognition_frames (recognition_id, step, source_index, pose, face, left_hand, right_hand, landmarks)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer frameStmt.Close()

	for _, f := range frames {
		landmarks, err := json.Marshal(f.Landmarks)
		if err != nil {
			return fmt.Errorf("encode frame %d: %w", f.Step, err)
		}
		v := f.Visibility
		if _, err := frameStmt.Exec(rec.ID, f.Step, f.SourceIndex, v.Pose, v.Face, v.LeftHand, v.RightHand, string(landmarks)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecognition(row scanner) (*Recognition, error) {
	rec := &Recognition{}
	var source, indices string

	if err := row.Scan(&rec.ID, &rec.Label, &rec.Score, &source, &rec.FrameCount, &indices, &rec.CreatedAt); err != nil {
		return nil, err
	}

	rec.Source = Source(source)
	if err := json.Unmarshal([]byte(indices), &rec.Indices); err != nil {
		return nil, fmt.Errorf("decode indices of %s: %w", rec.ID, err)
	}
	return rec, nil
}

// GetByID retrieves a recognition by its ID.
func (r *RecognitionRepository) GetByID(id string) (*Recognition, error) {
	rec, err := scanRecognition(r.db.QueryRow(
		`SELECT id, label, score, source, frame_count, indices, created_at
		 FROM recognitions WHERE id = ?`,
		id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// List retrieves the most recent recognitions, newest first. A limit of 0
// or less returns all of them.
func (r *RecognitionRepository) List(limit int) ([]*Recognition, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT id, label, score, source, frame_count, indices, created_at
		 FROM recognitions ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*Recognition
	for rows.Next() {
		rec, err := scanRecognition(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return recs, nil
}

// Scores returns the top n ranked scores of a recognition. A limit of 0
// or less returns all of them.
func (r *RecognitionRepository) Scores(id string, limit int) ([]ScoreEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT rank, label, score FROM recognition_scores
		 WHERE recognition_id = ? ORDER BY rank LIMIT ?`,
		id, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []ScoreEntry
	for rows.Next() {
		var s ScoreEntry
		if err := rows.Scan(&s.Rank, &s.Label, &s.Score); err != nil {
			return nil, err
		}
		scores = append(scores, s)
	}

	return scores, rows.Err()
}

// Frames returns the sampled frames of a recognition in sequence order.
func (r *RecognitionRepository) Frames(id string) ([]FrameRecord, error) {
	rows, err := r.db.Query(
		`SELECT step, source_index, pose, face, left_hand, right_hand, landmarks
		 FROM recognition_frames WHERE recognition_id = ? ORDER BY step`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []FrameRecord
	for rows.Next() {
		var f FrameRecord
		var landmarks string
		if err := rows.Scan(&f.Step, &f.SourceIndex, &f.Visibility.Pose, &f.Visibility.Face,
			&f.Visibility.LeftHand, &f.Visibility.RightHand, &landmarks); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(landmarks), &f.Landmarks); err != nil {
			return nil, fmt.Errorf("decode frame %d: %w", f.Step, err)
		}
		frames = append(frames, f)
	}

	return frames, rows.Err()
}

// Delete removes a recognition and everything stored with it.
func (r *RecognitionRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM recognitions WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
