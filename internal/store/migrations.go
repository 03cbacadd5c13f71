package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// One row per classified capture
		`CREATE TABLE IF NOT EXISTS recognitions (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			score REAL NOT NULL,
			source TEXT NOT NULL CHECK(source IN ('camera', 'files')),
			frame_count INTEGER NOT NULL,
			indices TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Full ranked score list of a recognition
		`CREATE TABLE IF NOT EXISTS recognition_scores (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			recognition_id TEXT NOT NULL REFERENCES recognitions(id) ON DELETE CASCADE,
			rank INTEGER NOT NULL,
			label TEXT NOT NULL,
			score REAL NOT NULL
		)`,

		// Sampled frames with their visibility flags and landmarks
		`CREATE TABLE IF NOT EXISTS recognition_frames (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			recognition_id TEXT NOT NULL REFERENCES recognitions(id) ON DELETE CASCADE,
			step INTEGER NOT NULL,
			source_index INTEGER NOT NULL,
			pose INTEGER NOT NULL,
			face INTEGER NOT NULL,
			left_hand INTEGER NOT NULL,
			right_hand INTEGER NOT NULL,
			landmarks TEXT NOT NULL
		)`,

		// Recorded examples of custom signs, matched by feature distance
		`CREATE TABLE IF NOT EXISTS sign_samples (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			features TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_recognition_scores_recognition_id ON recognition_scores(recognition_id)`,
		`CREATE INDEX IF NOT EXISTS idx_recognition_frames_recognition_id ON recognition_frames(recognition_id)`,
		`CREATE INDEX IF NOT EXISTS idx_recognitions_created_at ON recognitions(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sign_samples_label ON sign_samples(label)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
