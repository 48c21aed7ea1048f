package audit

import (
	"context"
	"strings"
	"testing"

	"minimart/backend/internal/domain"
)

const (
	testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	testIVHex  = "0f0e0d0c0b0a09080706050403020100"
)

type captureSink struct {
	entries []domain.AuditLogEntry
}

func (s *captureSink) CreateAuditLog(_ context.Context, entry domain.AuditLogEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func TestAESCodecRoundTrip(t *testing.T) {
	codec, err := NewAESCodec(testKeyHex, testIVHex)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}

	plain := []byte(`{"sale_id":"sale_abc","total_amount":"4.99"}`)
	stored, err := codec.Encode(plain)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if stored == string(plain) {
		t.Fatalf("ciphertext equals plaintext")
	}
	for _, c := range stored {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Fatalf("ciphertext %q is not lowercase hex", stored)
		}
	}

	decoded, err := codec.Decode(stored)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(decoded) != string(plain) {
		t.Errorf("round trip = %q, want %q", decoded, plain)
	}
}

func TestAESCodecRejectsBadKeyMaterial(t *testing.T) {
	if _, err := NewAESCodec("abcd", testIVHex); err == nil {
		t.Errorf("short key accepted")
	}
	if _, err := NewAESCodec(testKeyHex, "abcd"); err == nil {
		t.Errorf("short iv accepted")
	}
	if _, err := NewAESCodec("not-hex", testIVHex); err == nil {
		t.Errorf("non-hex key accepted")
	}
}

func TestAESCodecPassesThroughLegacyPlaintext(t *testing.T) {
	codec, err := NewAESCodec(testKeyHex, testIVHex)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}

	// Entries written before encryption was enabled are stored verbatim.
	legacy := `{"action":"noted before encryption"}`
	decoded, err := codec.Decode(legacy)
	if err != nil {
		t.Fatalf("decode legacy: %v", err)
	}
	if string(decoded) != legacy {
		t.Errorf("legacy passthrough = %q, want %q", decoded, legacy)
	}
}

func TestDecodeEntryMarksUndecodablePayload(t *testing.T) {
	codec, err := NewAESCodec(testKeyHex, testIVHex)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	stored, err := codec.Encode([]byte(`{"k":"v"}`))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	// Dropping a block boundary's worth of hex corrupts the ciphertext.
	truncated := stored[:len(stored)-2]

	view := DecodeEntry(codec, domain.AuditLogEntry{ID: "audit_1", Action: "SALE_RECORDED", Details: truncated})
	if view.Details != UndecodableMarker {
		t.Errorf("details = %v, want %q", view.Details, UndecodableMarker)
	}
	if view.Action != "SALE_RECORDED" {
		t.Errorf("action = %q, metadata must survive a bad payload", view.Action)
	}
}

func TestDecodeEntryShapes(t *testing.T) {
	empty := DecodeEntry(PlainCodec{}, domain.AuditLogEntry{ID: "audit_1"})
	if empty.Details != nil {
		t.Errorf("empty details = %v, want nil", empty.Details)
	}

	structured := DecodeEntry(PlainCodec{}, domain.AuditLogEntry{Details: `{"sale_id":"sale_1"}`})
	m, ok := structured.Details.(map[string]any)
	if !ok || m["sale_id"] != "sale_1" {
		t.Errorf("structured details = %v, want decoded map", structured.Details)
	}

	text := DecodeEntry(PlainCodec{}, domain.AuditLogEntry{Details: "ENCRYPTION_FAILED"})
	if text.Details != "ENCRYPTION_FAILED" {
		t.Errorf("text details = %v, want raw string", text.Details)
	}
}

func TestStoreRecorderEncryptsDetails(t *testing.T) {
	codec, err := NewAESCodec(testKeyHex, testIVHex)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	sink := &captureSink{}
	rec := NewStoreRecorder(sink, codec)

	rec.Record(context.Background(), "PRODUCT_CREATED", Event{
		UserID:    "user_1",
		Details:   map[string]any{"product_id": "prod_1"},
		IPAddress: "10.0.0.9",
	})

	if len(sink.entries) != 1 {
		t.Fatalf("sink got %d entries, want 1", len(sink.entries))
	}
	entry := sink.entries[0]
	if entry.Action != "PRODUCT_CREATED" || entry.UserID != "user_1" || entry.IPAddress != "10.0.0.9" {
		t.Errorf("entry metadata = %+v", entry)
	}
	if strings.Contains(entry.Details, "prod_1") {
		t.Errorf("details stored in plain text: %q", entry.Details)
	}

	plain, err := codec.Decode(entry.Details)
	if err != nil {
		t.Fatalf("decode stored details: %v", err)
	}
	if !strings.Contains(string(plain), "prod_1") {
		t.Errorf("decoded details = %q, want product id present", plain)
	}
}

func TestStoreRecorderWithoutDetails(t *testing.T) {
	sink := &captureSink{}
	rec := NewStoreRecorder(sink, PlainCodec{})

	rec.Record(context.Background(), "USER_LOGGED_IN", Event{UserID: "user_1"})

	if len(sink.entries) != 1 {
		t.Fatalf("sink got %d entries, want 1", len(sink.entries))
	}
	if sink.entries[0].Details != "" {
		t.Errorf("details = %q, want empty", sink.entries[0].Details)
	}
}
