package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps persistent access to the SQLite database.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer keeps SQLite happy

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS cameras (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			name TEXT NOT NULL,
			rtsp_url TEXT NOT NULL,
			location TEXT NOT NULL DEFAULT '',
			enabled INTEGER NOT NULL DEFAULT 1,
			detection_enabled INTEGER NOT NULL DEFAULT 1,
			fps_target INTEGER NOT NULL DEFAULT 8,
			status TEXT NOT NULL DEFAULT 'stopped',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			camera_id TEXT NOT NULL REFERENCES cameras(id),
			timestamp TIMESTAMP NOT NULL,
			bbox_json TEXT NOT NULL DEFAULT '[]',
			confidence REAL NOT NULL DEFAULT 0,
			snapshot_url TEXT NOT NULL DEFAULT '',
			metadata_json TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_camera ON alerts(camera_id, created_at DESC);`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// UserByUsername looks up an account by username.
func (s *Store) UserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`,
		username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// CreateUser stores a new account and returns it with a generated ID.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (*User, error) {
	u := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, u.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// CreateCamera stores cam and fills in ID and timestamps.
func (s *Store) CreateCamera(ctx context.Context, cam *Camera) error {
	now := time.Now().UTC()
	cam.ID = uuid.NewString()
	cam.CreatedAt = now
	cam.UpdatedAt = now
	if cam.Status == "" {
		cam.Status = CameraStatusStopped
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cameras (id, user_id, name, rtsp_url, location, enabled, detection_enabled, fps_target, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cam.ID, cam.UserID, cam.Name, cam.RtspURL, cam.Location,
		cam.Enabled, cam.DetectionEnabled, cam.FpsTarget, cam.Status,
		cam.CreatedAt, cam.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create camera: %w", err)
	}
	return nil
}

// Camera returns the camera with the given id.
func (s *Store) Camera(ctx context.Context, id string) (*Camera, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, rtsp_url, location, enabled, detection_enabled, fps_target, status, created_at, updated_at
		 FROM cameras WHERE id = ?`, id)
	return scanCamera(row)
}

// CamerasByUser lists the user's cameras, newest first.
func (s *Store) CamerasByUser(ctx context.Context, userID string) ([]*Camera, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, rtsp_url, location, enabled, detection_enabled, fps_target, status, created_at, updated_at
		 FROM cameras WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list cameras: %w", err)
	}
	defer rows.Close()

	var cams []*Camera
	for rows.Next() {
		cam, err := scanCamera(rows)
		if err != nil {
			return nil, err
		}
		cams = append(cams, cam)
	}
	return cams, rows.Err()
}

// UpdateCamera applies the non-nil fields of upd and returns the result.
func (s *Store) UpdateCamera(ctx context.Context, id string, upd CameraUpdate) (*Camera, error) {
	cam, err := s.Camera(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		cam.Name = *upd.Name
	}
	if upd.RtspURL != nil {
		cam.RtspURL = *upd.RtspURL
	}
	if upd.Location != nil {
		cam.Location = *upd.Location
	}
	if upd.Enabled != nil {
		cam.Enabled = *upd.Enabled
	}
	if upd.DetectionEnabled != nil {
		cam.DetectionEnabled = *upd.DetectionEnabled
	}
	if upd.FpsTarget != nil {
		cam.FpsTarget = *upd.FpsTarget
	}
	cam.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`UPDATE cameras SET name = ?, rtsp_url = ?, location = ?, enabled = ?, detection_enabled = ?, fps_target = ?, updated_at = ?
		 WHERE id = ?`,
		cam.Name, cam.RtspURL, cam.Location, cam.Enabled, cam.DetectionEnabled, cam.FpsTarget, cam.UpdatedAt, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update camera: %w", err)
	}
	return cam, nil
}

// SetCameraStatus persists the camera's runtime status.
func (s *Store) SetCameraStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE cameras SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set camera status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCamera removes the camera record.
func (s *Store) DeleteCamera(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cameras WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete camera: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateAlert stores alert and fills in ID and CreatedAt.
func (s *Store) CreateAlert(ctx context.Context, alert *Alert) error {
	alert.ID = uuid.NewString()
	alert.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, camera_id, timestamp, bbox_json, confidence, snapshot_url, metadata_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID, alert.CameraID, alert.Timestamp, alert.BboxJSON,
		alert.Confidence, alert.SnapshotURL, alert.MetadataJSON, alert.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

// AlertsByCamera lists the camera's alerts, newest first, capped at limit.
func (s *Store) AlertsByCamera(ctx context.Context, cameraID string, limit int) ([]*Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, camera_id, timestamp, bbox_json, confidence, snapshot_url, metadata_json, created_at
		 FROM alerts WHERE camera_id = ? ORDER BY created_at DESC LIMIT ?`,
		cameraID, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*Alert
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.ID, &a.CameraID, &a.Timestamp, &a.BboxJSON,
			&a.Confidence, &a.SnapshotURL, &a.MetadataJSON, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

// DeleteAlertsByCamera removes every alert belonging to cameraID.
func (s *Store) DeleteAlertsByCamera(ctx context.Context, cameraID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE camera_id = ?`, cameraID); err != nil {
		return fmt.Errorf("delete alerts: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCamera(row rowScanner) (*Camera, error) {
	var cam Camera
	err := row.Scan(&cam.ID, &cam.UserID, &cam.Name, &cam.RtspURL, &cam.Location,
		&cam.Enabled, &cam.DetectionEnabled, &cam.FpsTarget, &cam.Status,
		&cam.CreatedAt, &cam.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan camera: %w", err)
	}
	return &cam, nil
}
