package hosting

import (
	"context"
	"time"

	"github.com/google/uuid"

	"lvfs/pkg/bus"
)

// Event types published after successful mutations.
const (
	EventFirmwareUploaded = "firmware.uploaded"
	EventVendorAdded      = "vendor.added"
	EventVendorDisabled   = "vendor.disabled"
	EventVendorRemoved    = "vendor.removed"
)

// Event describes a completed mutation. Vendor tokens never appear in events;
// vendors are identified by name and a redacted token.
type Event struct {
	ID      uuid.UUID      `json:"id"`
	Type    string         `json:"type"`
	Actor   string         `json:"actor"`
	Object  string         `json:"object"`
	Details map[string]any `json:"details,omitempty"`
	At      time.Time      `json:"at"`
}

// Subject is the bus subject the event is published on.
func (e Event) Subject() string {
	return bus.SubjectPrefix + e.Type
}

// Publisher delivers events. *bus.Bus satisfies it.
type Publisher interface {
	Publish(ctx context.Context, subj string, v any) error
}

func (s *Service) publish(ctx context.Context, typ, actor, object string, details map[string]any) {
	if s.events == nil {
		return
	}
	ev := Event{
		ID:      uuid.New(),
		Type:    typ,
		Actor:   actor,
		Object:  object,
		Details: details,
		At:      s.now().UTC(),
	}
	if err := s.events.Publish(ctx, ev.Subject(), ev); err != nil {
		s.log.Warn().Err(err).Str("event", typ).Msg("publish event")
	}
}

// Redact shortens a vendor token so it can be logged.
func Redact(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}

func vendorLabel(v *Vendor) string {
	if v == nil {
		return ""
	}
	if v.Name == "" {
		return Redact(v.GUID)
	}
	return v.Name + " (" + Redact(v.GUID) + ")"
}
