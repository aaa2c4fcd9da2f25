package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Calibrations table - one row per completed calibration grid.
		// Corner coordinates are stored in source-image pixels.
		`CREATE TABLE IF NOT EXISTS calibrations (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			video_width INTEGER NOT NULL,
			video_height INTEGER NOT NULL,
			column_count INTEGER NOT NULL CHECK(column_count >= 1),
			tl_x REAL NOT NULL, tl_y REAL NOT NULL,
			tr_x REAL NOT NULL, tr_y REAL NOT NULL,
			bl_x REAL NOT NULL, bl_y REAL NOT NULL,
			br_x REAL NOT NULL, br_y REAL NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Divider fractions per calibration, ordered by position.
		`CREATE TABLE IF NOT EXISTS calibration_dividers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			calibration_id TEXT NOT NULL REFERENCES calibrations(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			fraction REAL NOT NULL
		)`,

		// Settings table - stores application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_calibration_dividers_calibration_id ON calibration_dividers(calibration_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
