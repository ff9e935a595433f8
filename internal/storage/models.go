package storage

import "time"

// User is a dashboard account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Camera is a managed RTSP feed. Status is authoritative for the dashboard
// and only the coordinator writes it.
type Camera struct {
	ID               string    `json:"id"`
	UserID           string    `json:"userId"`
	Name             string    `json:"name"`
	RtspURL          string    `json:"rtspUrl"`
	Location         string    `json:"location"`
	Enabled          bool      `json:"enabled"`
	DetectionEnabled bool      `json:"detectionEnabled"`
	FpsTarget        int       `json:"fpsTarget"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

const (
	CameraStatusStopped = "stopped"
	CameraStatusRunning = "running"
)

// Alert is a stored detection event posted by the worker.
type Alert struct {
	ID           string    `json:"id"`
	CameraID     string    `json:"cameraId"`
	Timestamp    time.Time `json:"timestamp"`
	BboxJSON     string    `json:"bboxJson"`
	Confidence   float64   `json:"confidence"`
	SnapshotURL  string    `json:"snapshotUrl"`
	MetadataJSON string    `json:"metadataJson"`
	CreatedAt    time.Time `json:"createdAt"`
}

// CameraUpdate carries a partial camera update; nil fields are untouched.
type CameraUpdate struct {
	Name             *string `json:"name"`
	RtspURL          *string `json:"rtspUrl"`
	Location         *string `json:"location"`
	Enabled          *bool   `json:"enabled"`
	DetectionEnabled *bool   `json:"detectionEnabled"`
	FpsTarget        *int    `json:"fpsTarget"`
}
