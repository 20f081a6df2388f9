package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"
	"time"
)

func TestNTHash(t *testing.T) {
	// Well-known NT hash of "password"
	want := "8846f7eaee8fb117ad06bdd830b7586c"
	if got := hex.EncodeToString(NTHash("password")); got != want {
		t.Errorf("NTHash = %s, want %s", got, want)
	}
}

func TestLMv2Response(t *testing.T) {
	v2 := NTLMv2Hash(NTHash("password"), "user", "DOMAIN")
	server := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	client := []byte{8, 7, 6, 5, 4, 3, 2, 1}

	resp := LMv2Response(v2, server, client)
	if len(resp) != 24 {
		t.Fatalf("expected 24 bytes, got %d", len(resp))
	}
	if !bytes.Equal(resp[16:], client) {
		t.Error("expected client challenge suffix")
	}
	if !bytes.Equal(resp, LMv2Response(v2, server, client)) {
		t.Error("expected deterministic output")
	}
}

func TestNTLMv2Response(t *testing.T) {
	v2 := NTLMv2Hash(NTHash("password"), "user", "DOMAIN")
	server := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	client := []byte{8, 7, 6, 5, 4, 3, 2, 1}
	ts := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	resp, key := NTLMv2Response(v2, server, client, ts, nil)
	if len(resp) != 16+32 {
		t.Fatalf("expected 48 bytes, got %d", len(resp))
	}
	if len(key) != 16 {
		t.Errorf("expected 16-byte session key, got %d", len(key))
	}
	if resp[16] != 1 || resp[17] != 1 {
		t.Error("expected blob signature 0x0101")
	}
	if !bytes.Equal(resp[32:40], client) {
		t.Error("expected client challenge in blob")
	}
	if !bytes.Equal(server, []byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Error("server challenge was modified")
	}
}
