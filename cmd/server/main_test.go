package main

import (
	"testing"

	"minimart/backend/internal/audit"
	"minimart/backend/internal/config"
)

func TestBuildAuditCodecFallsBackToPlain(t *testing.T) {
	codec := buildAuditCodec(config.Config{})
	if _, ok := codec.(audit.PlainCodec); !ok {
		t.Fatalf("expected plain codec without key material, got %T", codec)
	}

	codec = buildAuditCodec(config.Config{
		AuditEncryptionKey: "not-hex",
		AuditEncryptionIV:  "also-not-hex",
	})
	if _, ok := codec.(audit.PlainCodec); !ok {
		t.Fatalf("expected plain codec for bad key material, got %T", codec)
	}
}

func TestBuildAuditCodecWithValidKeys(t *testing.T) {
	codec := buildAuditCodec(config.Config{
		AuditEncryptionKey: "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f",
		AuditEncryptionIV:  "0f0e0d0c0b0a09080706050403020100",
	})
	if _, ok := codec.(*audit.AESCodec); !ok {
		t.Fatalf("expected AES codec, got %T", codec)
	}
}
