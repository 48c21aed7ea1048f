package audit

import (
	"context"
	"encoding/json"
	"log"

	"minimart/backend/internal/domain"
)

// UndecodableMarker is what the audit viewer shows for a payload that can no
// longer be decoded (wrong key, corrupted ciphertext). Listing never fails
// because of a bad entry.
const UndecodableMarker = "(failed to decrypt)"

// Event is the optional context attached to an audit action.
type Event struct {
	UserID    string
	Details   map[string]any
	IPAddress string
}

// Recorder receives a fire-and-forget description of a significant action.
// Implementations must never block the caller on failure and never return an
// error: audit is best-effort, not transactional with the business operation.
type Recorder interface {
	Record(ctx context.Context, action string, event Event)
}

// Sink is the slice of the repository the recorder writes through.
type Sink interface {
	CreateAuditLog(ctx context.Context, entry domain.AuditLogEntry) error
}

// StoreRecorder persists events through a Sink, running the details payload
// through the configured codec first.
type StoreRecorder struct {
	sink  Sink
	codec Codec
}

func NewStoreRecorder(sink Sink, codec Codec) *StoreRecorder {
	if codec == nil {
		codec = PlainCodec{}
	}
	return &StoreRecorder{sink: sink, codec: codec}
}

func (r *StoreRecorder) Record(ctx context.Context, action string, event Event) {
	var details string
	if event.Details != nil {
		plain, err := json.Marshal(event.Details)
		if err != nil {
			log.Printf("[audit] WARN: failed to encode details for %q: %v", action, err)
			details = "ERROR_ENCODING_DETAILS"
		} else {
			encoded, err := r.codec.Encode(plain)
			if err != nil {
				log.Printf("[audit] WARN: failed to seal details for %q: %v", action, err)
				encoded = "ENCRYPTION_FAILED"
			}
			details = encoded
		}
	}

	err := r.sink.CreateAuditLog(ctx, domain.AuditLogEntry{
		Action:    action,
		UserID:    event.UserID,
		Details:   details,
		IPAddress: event.IPAddress,
	})
	if err != nil {
		log.Printf("[audit] WARN: failed to record %q: %v", action, err)
	}
}

// NopRecorder drops every event. Tests only.
type NopRecorder struct{}

func (NopRecorder) Record(_ context.Context, _ string, _ Event) {}

// DecodeEntry prepares a stored entry for display. Payloads that fail to
// decode render as UndecodableMarker; payloads that decode but are not JSON
// render as plain strings.
func DecodeEntry(codec Codec, entry domain.AuditLogEntry) domain.AuditLogView {
	if codec == nil {
		codec = PlainCodec{}
	}
	view := domain.AuditLogView{
		ID:        entry.ID,
		Action:    entry.Action,
		UserID:    entry.UserID,
		UserName:  entry.UserName,
		IPAddress: entry.IPAddress,
		CreatedAt: entry.CreatedAt,
	}
	if entry.Details == "" {
		return view
	}

	plain, err := codec.Decode(entry.Details)
	if err != nil {
		view.Details = UndecodableMarker
		return view
	}

	var structured any
	if err := json.Unmarshal(plain, &structured); err != nil {
		view.Details = string(plain)
		return view
	}
	view.Details = structured
	return view
}
