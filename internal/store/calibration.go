package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/antialias/soroban-vision/internal/calibration"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ActiveCalibrationKey is the settings key holding the id of the calibration
// the pipeline should load on startup.
const ActiveCalibrationKey = "active_calibration_id"

// Calibration represents a completed calibration grid stored in the database.
type Calibration struct {
	ID          string
	Name        string
	VideoWidth  int
	VideoHeight int
	Grid        calibration.Grid
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CalibrationRepository provides CRUD operations for calibrations.
type CalibrationRepository struct {
	db *sql.DB
}

// Calibrations returns the calibration repository for this store.
func (s *Store) Calibrations() *CalibrationRepository {
	return &CalibrationRepository{db: s.db}
}

// Create inserts a new calibration and its dividers into the database.
func (r *CalibrationRepository) Create(c *Calibration) error {
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	corners := c.Grid.Corners
	_, err = tx.Exec(
		`INSERT INTO calibrations (id, name, video_width, video_height, column_count,
			tl_x, tl_y, tr_x, tr_y, bl_x, bl_y, br_x, br_y, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.VideoWidth, c.VideoHeight, c.Grid.ColumnCount,
		corners.TopLeft.X, corners.TopLeft.Y,
		corners.TopRight.X, corners.TopRight.Y,
		corners.BottomLeft.X, corners.BottomLeft.Y,
		corners.BottomRight.X, corners.BottomRight.Y,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return err
	}

	for i, fraction := range c.Grid.Dividers {
		_, err = tx.Exec(
			`INSERT INTO calibration_dividers (calibration_id, position, fraction)
			 VALUES (?, ?, ?)`,
			c.ID, i, fraction,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetByID retrieves a calibration by its ID.
func (r *CalibrationRepository) GetByID(id string) (*Calibration, error) {
	return r.get(`SELECT id, name, video_width, video_height, column_count,
		tl_x, tl_y, tr_x, tr_y, bl_x, bl_y, br_x, br_y, created_at, updated_at
		FROM calibrations WHERE id = ?`, id)
}

// Latest retrieves the most recently created calibration.
func (r *CalibrationRepository) Latest() (*Calibration, error) {
	return r.get(`SELECT id, name, video_width, video_height, column_count,
		tl_x, tl_y, tr_x, tr_y, bl_x, bl_y, br_x, br_y, created_at, updated_at
		FROM calibrations ORDER BY created_at DESC, id DESC LIMIT 1`)
}

func (r *CalibrationRepository) get(query string, args ...interface{}) (*Calibration, error) {
	c := &Calibration{}
	corners := &c.Grid.Corners

	err := r.db.QueryRow(query, args...).Scan(
		&c.ID, &c.Name, &c.VideoWidth, &c.VideoHeight, &c.Grid.ColumnCount,
		&corners.TopLeft.X, &corners.TopLeft.Y,
		&corners.TopRight.X, &corners.TopRight.Y,
		&corners.BottomLeft.X, &corners.BottomLeft.Y,
		&corners.BottomRight.X, &corners.BottomRight.Y,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := r.loadDividers(c); err != nil {
		return nil, err
	}
	c.Grid.ROI = corners.BoundingBox()
	return c, nil
}

func (r *CalibrationRepository) loadDividers(c *Calibration) error {
	rows, err := r.db.Query(
		`SELECT fraction FROM calibration_dividers
		 WHERE calibration_id = ? ORDER BY position ASC`,
		c.ID,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	c.Grid.Dividers = nil
	for rows.Next() {
		var fraction float64
		if err := rows.Scan(&fraction); err != nil {
			return err
		}
		c.Grid.Dividers = append(c.Grid.Dividers, fraction)
	}
	return rows.Err()
}

// List retrieves all calibrations from the database, newest first.
// Dividers are loaded for each calibration.
func (r *CalibrationRepository) List() ([]*Calibration, error) {
	rows, err := r.db.Query(
		`SELECT id, name, video_width, video_height, column_count,
			tl_x, tl_y, tr_x, tr_y, bl_x, bl_y, br_x, br_y, created_at, updated_at
		 FROM calibrations ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var calibrations []*Calibration
	for rows.Next() {
		c := &Calibration{}
		corners := &c.Grid.Corners

		err := rows.Scan(
			&c.ID, &c.Name, &c.VideoWidth, &c.VideoHeight, &c.Grid.ColumnCount,
			&corners.TopLeft.X, &corners.TopLeft.Y,
			&corners.TopRight.X, &corners.TopRight.Y,
			&corners.BottomLeft.X, &corners.BottomLeft.Y,
			&corners.BottomRight.X, &corners.BottomRight.Y,
			&c.CreatedAt, &c.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		calibrations = append(calibrations, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range calibrations {
		if err := r.loadDividers(c); err != nil {
			return nil, err
		}
		c.Grid.ROI = c.Grid.Corners.BoundingBox()
	}

	return calibrations, nil
}

// Update replaces the grid and name of an existing calibration.
func (r *CalibrationRepository) Update(c *Calibration) error {
	c.UpdatedAt = time.Now()

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	corners := c.Grid.Corners
	result, err := tx.Exec(
		`UPDATE calibrations SET name = ?, video_width = ?, video_height = ?, column_count = ?,
			tl_x = ?, tl_y = ?, tr_x = ?, tr_y = ?, bl_x = ?, bl_y = ?, br_x = ?, br_y = ?,
			updated_at = ?
		 WHERE id = ?`,
		c.Name, c.VideoWidth, c.VideoHeight, c.Grid.ColumnCount,
		corners.TopLeft.X, corners.TopLeft.Y,
		corners.TopRight.X, corners.TopRight.Y,
		corners.BottomLeft.X, corners.BottomLeft.Y,
		corners.BottomRight.X, corners.BottomRight.Y,
		c.UpdatedAt, c.ID,
	)
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

	if _, err := tx.Exec(`DELETE FROM calibration_dividers WHERE calibration_id = ?`, c.ID); err != nil {
		return err
	}
	for i, fraction := range c.Grid.Dividers {
		_, err = tx.Exec(
			`INSERT INTO calibration_dividers (calibration_id, position, fraction)
			 VALUES (?, ?, ?)`,
			c.ID, i, fraction,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Delete removes a calibration and its dividers by ID.
func (r *CalibrationRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM calibrations WHERE id = ?`, id)
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
