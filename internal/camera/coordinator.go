package camera

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/velsoria/argus/internal/events"
	"github.com/velsoria/argus/internal/storage"
)

// ErrInvalidInput marks a request body that failed validation.
var ErrInvalidInput = errors.New("invalid input")

// Store is the slice of the storage layer the coordinator needs.
type Store interface {
	Camera(ctx context.Context, id string) (*storage.Camera, error)
	SetCameraStatus(ctx context.Context, id, status string) error
	UpdateCamera(ctx context.Context, id string, upd storage.CameraUpdate) (*storage.Camera, error)
	DeleteCamera(ctx context.Context, id string) error
	CreateAlert(ctx context.Context, alert *storage.Alert) error
	DeleteAlertsByCamera(ctx context.Context, cameraID string) error
}

// ControlClient drives the out-of-process detection worker.
type ControlClient interface {
	Start(ctx context.Context, cameraID, rtspURL string, fpsTarget int, detectionEnabled bool) error
	Stop(ctx context.Context, cameraID string) error
	UpdateConfig(ctx context.Context, cameraID string, changes map[string]any) error
}

// Publisher accepts events for fan-out to realtime clients.
type Publisher interface {
	Publish(evt events.Event)
}

// Coordinator owns camera runtime state transitions. It is the only writer of
// the status field and the only component that issues worker control calls.
type Coordinator struct {
	store          Store
	control        ControlClient
	hub            Publisher
	log            *slog.Logger
	controlTimeout time.Duration

	// OnControlFailure, when set, is invoked for every failed worker call in
	// addition to logging. Must be set before the coordinator is used.
	OnControlFailure func(cameraID, op string, err error)

	wg sync.WaitGroup
}

func New(log *slog.Logger, store Store, control ControlClient, hub Publisher, controlTimeout time.Duration) *Coordinator {
	if controlTimeout <= 0 {
		controlTimeout = 5 * time.Second
	}
	return &Coordinator{
		store:          store,
		control:        control,
		hub:            hub,
		log:            log,
		controlTimeout: controlTimeout,
	}
}

// Wait blocks until all in-flight worker control calls have finished. Used
// during shutdown and in tests.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Start marks the camera running, then asks the worker to start it with the
// camera's current parameters. The status write always precedes the worker
// call.
func (c *Coordinator) Start(ctx context.Context, cameraID string) error {
	cam, err := c.store.Camera(ctx, cameraID)
	if err != nil {
		return err
	}
	if err := c.store.SetCameraStatus(ctx, cameraID, storage.CameraStatusRunning); err != nil {
		return err
	}
	c.dispatch(cameraID, "start", func(ctx context.Context) error {
		return c.control.Start(ctx, cam.ID, cam.RtspURL, cam.FpsTarget, cam.DetectionEnabled)
	})
	return nil
}

// Stop marks the camera stopped, then asks the worker to stop it.
func (c *Coordinator) Stop(ctx context.Context, cameraID string) error {
	if err := c.store.SetCameraStatus(ctx, cameraID, storage.CameraStatusStopped); err != nil {
		return err
	}
	c.dispatch(cameraID, "stop", func(ctx context.Context) error {
		return c.control.Stop(ctx, cameraID)
	})
	return nil
}

// Delete removes the camera's alerts, then the camera record, then asks the
// worker to stop the pipeline. The worker call uses the already-deleted ID
// and tolerates a camera that no longer exists server-side.
func (c *Coordinator) Delete(ctx context.Context, cameraID string) error {
	if err := c.store.DeleteAlertsByCamera(ctx, cameraID); err != nil {
		return err
	}
	if err := c.store.DeleteCamera(ctx, cameraID); err != nil {
		return err
	}
	c.dispatch(cameraID, "stop", func(ctx context.Context) error {
		return c.control.Stop(ctx, cameraID)
	})
	return nil
}

// Update persists the partial update and, if any runtime-affecting field
// changed, pushes exactly those fields to the worker.
func (c *Coordinator) Update(ctx context.Context, cameraID string, upd storage.CameraUpdate) (*storage.Camera, error) {
	cam, err := c.store.UpdateCamera(ctx, cameraID, upd)
	if err != nil {
		return nil, err
	}

	changes := runtimeChanges(upd)
	if len(changes) > 0 {
		c.dispatch(cameraID, "update", func(ctx context.Context) error {
			return c.control.UpdateConfig(ctx, cameraID, changes)
		})
	}
	return cam, nil
}

func runtimeChanges(upd storage.CameraUpdate) map[string]any {
	changes := make(map[string]any)
	if upd.RtspURL != nil {
		changes["rtspUrl"] = *upd.RtspURL
	}
	if upd.FpsTarget != nil {
		changes["fpsTarget"] = *upd.FpsTarget
	}
	if upd.DetectionEnabled != nil {
		changes["detectionEnabled"] = *upd.DetectionEnabled
	}
	if upd.Enabled != nil {
		changes["enabled"] = *upd.Enabled
	}
	return changes
}

// dispatch issues a best-effort worker call without blocking the caller.
// Failures are logged and reported to OnControlFailure, never propagated.
func (c *Coordinator) dispatch(cameraID, op string, call func(ctx context.Context) error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.controlTimeout)
		defer cancel()
		if err := call(ctx); err != nil {
			c.log.Warn("worker control call failed",
				slog.String("op", op),
				slog.String("camera", cameraID),
				slog.String("err", err.Error()),
			)
			if c.OnControlFailure != nil {
				c.OnControlFailure(cameraID, op, err)
			}
		}
	}()
}

// Box is a detection bounding box.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// AlertInput is the worker-posted alert body before validation.
type AlertInput struct {
	CameraID    string         `json:"cameraId"`
	Timestamp   string         `json:"timestamp"`
	Bbox        []Box          `json:"bbox"`
	Confidence  *float64       `json:"confidence"`
	SnapshotURL string         `json:"snapshotUrl"`
	Metadata    map[string]any `json:"metadata"`
}

func (in *AlertInput) validate() (time.Time, error) {
	if _, err := uuid.Parse(in.CameraID); err != nil {
		return time.Time{}, fmt.Errorf("%w: cameraId must be a uuid", ErrInvalidInput)
	}
	ts, err := time.Parse(time.RFC3339, in.Timestamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp must be RFC 3339", ErrInvalidInput)
	}
	if in.Confidence != nil && (*in.Confidence < 0 || *in.Confidence > 1) {
		return time.Time{}, fmt.Errorf("%w: confidence must be within [0,1]", ErrInvalidInput)
	}
	if in.SnapshotURL != "" {
		parsed, err := url.Parse(in.SnapshotURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return time.Time{}, fmt.Errorf("%w: snapshotUrl must be an absolute URL", ErrInvalidInput)
		}
	}
	return ts, nil
}

// IngestAlert validates the worker-posted alert, persists it, then publishes
// an alert event to subscribed clients. The event is published only after the
// record is stored, so every delivered alert has a stored counterpart.
func (c *Coordinator) IngestAlert(ctx context.Context, in AlertInput) (*storage.Alert, error) {
	ts, err := in.validate()
	if err != nil {
		return nil, err
	}
	if _, err := c.store.Camera(ctx, in.CameraID); err != nil {
		return nil, err
	}

	bbox := in.Bbox
	if bbox == nil {
		bbox = []Box{}
	}
	bboxJSON, err := json.Marshal(bbox)
	if err != nil {
		return nil, fmt.Errorf("marshal bbox: %w", err)
	}
	var metadataJSON string
	if in.Metadata != nil {
		raw, err := json.Marshal(in.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
		metadataJSON = string(raw)
	}
	var confidence float64
	if in.Confidence != nil {
		confidence = *in.Confidence
	}

	alert := &storage.Alert{
		CameraID:     in.CameraID,
		Timestamp:    ts.UTC(),
		BboxJSON:     string(bboxJSON),
		Confidence:   confidence,
		SnapshotURL:  in.SnapshotURL,
		MetadataJSON: metadataJSON,
	}
	if err := c.store.CreateAlert(ctx, alert); err != nil {
		return nil, err
	}

	c.hub.Publish(events.Event{
		Type:        events.EventAlert,
		CameraID:    alert.CameraID,
		AlertID:     alert.ID,
		Timestamp:   alert.Timestamp.Format(time.RFC3339),
		SnapshotURL: alert.SnapshotURL,
	})
	return alert, nil
}
