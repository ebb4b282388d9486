package wire

import (
	"encoding/json"
	"testing"
	"time"
)

func TestCodecPrepareInjectsFields(t *testing.T) {
	c := &Codec{Hostname: "test-host"}
	now := time.Date(2026, 1, 2, 3, 4, 5, 600_000_000, time.UTC)
	compressed, err := c.Prepare(map[string]interface{}{"n": 1}, now, 12.5)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	body, err := c.Decode(compressed)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if body["hostname"] != "test-host" {
		t.Errorf("hostname = %v, want test-host", body["hostname"])
	}
	ts, ok := body["timestamp"].(map[string]interface{})
	if !ok {
		t.Fatalf("timestamp missing or wrong shape: %v", body["timestamp"])
	}
	if ts["$date"] != "2026-01-02T03:04:05.600Z" {
		t.Errorf("$date = %v", ts["$date"])
	}
	if num, ok := body["timecode"].(json.Number); !ok || num.String() != "12.5" {
		t.Errorf("timecode = %v", body["timecode"])
	}
	if num, ok := body["n"].(json.Number); !ok || num.String() != "1" {
		t.Errorf("n = %v", body["n"])
	}
}

func TestCodecPrepareDoesNotOverwriteTimecode(t *testing.T) {
	c := &Codec{Hostname: "h"}
	compressed, err := c.Prepare(map[string]interface{}{"timecode": 99.0}, time.Now(), 1.0)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	body, err := c.Decode(compressed)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if num, _ := body["timecode"].(json.Number); num.String() != "99" {
		t.Errorf("timecode overwritten: %v", body["timecode"])
	}
}

func TestCodecDecodeRoundTrip(t *testing.T) {
	c := NewCodec()
	orig := map[string]interface{}{"a": "b", "n": 3}
	compressed, err := c.Prepare(orig, time.Now(), 0)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	body, err := c.Decode(compressed)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if body["a"] != "b" {
		t.Errorf("a = %v", body["a"])
	}
}

func TestCodecDecodeGarbage(t *testing.T) {
	c := NewCodec()
	if _, err := c.Decode([]byte("not snappy")); err == nil {
		t.Fatal("expected error decoding garbage")
	}
}

func TestFrameClassify(t *testing.T) {
	tests := []struct {
		name  string
		parts [][]byte
		want  Kind
	}{
		{"none", nil, KindNone},
		{"json", [][]byte{[]byte("body")}, KindJSON},
		{"blob", [][]byte{[]byte("meta"), []byte("bytes")}, KindBlob},
		{"too many", [][]byte{{1}, {2}, {3}}, KindError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &Frame{Topic: "t", Parts: tt.parts}
			if got := f.Classify(); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidatePartCount(t *testing.T) {
	if err := ValidatePartCount(1); err == nil {
		t.Error("expected error for 1 total part")
	}
	if err := ValidatePartCount(4); err == nil {
		t.Error("expected error for 4 total parts")
	}
	if err := ValidatePartCount(2); err != nil {
		t.Errorf("unexpected error for 2 parts: %v", err)
	}
	if err := ValidatePartCount(3); err != nil {
		t.Errorf("unexpected error for 3 parts: %v", err)
	}
}
