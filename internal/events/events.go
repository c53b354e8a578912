// Package events publishes device activity (creation, compliance flips) to
// interested consumers after it has been committed to storage.
package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TypeDeviceCreated     = "device_created"
	TypeComplianceChanged = "compliance_changed"
)

// Event is one device activity record.
type Event struct {
	ID        string            `json:"id"`
	Type      string            `json:"event_type"`
	DeviceID  int64             `json:"device_id"`
	LicenseID int64             `json:"license_id"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
}

// New returns an event with a fresh ID.
func New(eventType string, licenseID, deviceID int64, metadata map[string]string, now time.Time) Event {
	if metadata == nil {
		metadata = map[string]string{}
	}
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		DeviceID:  deviceID,
		LicenseID: licenseID,
		Metadata:  metadata,
		CreatedAt: now,
	}
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// LogPublisher writes events to a logger.
type LogPublisher struct {
	Logger *slog.Logger
}

// Publish logs e at info level.
func (p LogPublisher) Publish(_ context.Context, e Event) error {
	logger := p.Logger
	if logger == nil {
		return nil
	}
	attrs := []any{"event_id", e.ID, "event_type", e.Type, "device_id", e.DeviceID, "license_id", e.LicenseID}
	for k, v := range e.Metadata {
		attrs = append(attrs, k, v)
	}
	logger.Info("device event", attrs...)
	return nil
}

// Multi fans events out to every publisher and joins their errors.
type Multi []Publisher

// Publish sends e to each publisher, continuing past failures.
func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

// Publish does nothing.
func (Discard) Publish(context.Context, Event) error { return nil }
