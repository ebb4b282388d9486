package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/klauspost/compress/snappy"
)

// StartupShutdownGrace is the fixed backward shift applied to the injected
// timestamp and timecode of startup/shutdown events, so that a receiver
// connecting slightly late still observes the event ahead of the first
// data message from the same agent (spec §4.1, §8).
const StartupShutdownGrace = 500 * time.Millisecond

// ISOFormat is the millisecond-precision UTC timestamp layout used for every
// injected "timestamp.$date" field.
const ISOFormat = "2006-01-02T15:04:05.000Z"

// Codec compresses and decompresses the JSON bodies of data frames and
// injects the common envelope fields (hostname, timestamp, timecode) before
// publish.
type Codec struct {
	Hostname string
}

// NewCodec builds a Codec bound to the local hostname, falling back to
// "unknown-host" if it cannot be determined.
func NewCodec() *Codec {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}
	return &Codec{Hostname: host}
}

// Prepare injects hostname, timestamp.$date, and timecode into body (a JSON
// object) unless the corresponding field is already present, and returns
// the Snappy-compressed encoding ready to go on the wire. now and timecode
// are the values to inject verbatim; callers shift them for startup/shutdown
// events before calling Prepare.
func (c *Codec) Prepare(body map[string]interface{}, now time.Time, timecode float64) ([]byte, error) {
	if body == nil {
		body = map[string]interface{}{}
	}
	if _, ok := body["hostname"]; !ok {
		body["hostname"] = c.Hostname
	}
	if _, ok := body["timestamp"]; !ok {
		body["timestamp"] = map[string]string{"$date": now.UTC().Format(ISOFormat)}
	}
	if _, ok := body["timecode"]; !ok {
		body["timecode"] = timecode
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal body: %w", err)
	}
	return snappy.Encode(nil, raw), nil
}

// Decode decompresses and parses a JSON data frame body into a generic map.
// A decompress or parse failure is returned to the caller, which per spec
// §4.1 must count and discard the message rather than treat the connection
// as broken.
func (c *Codec) Decode(compressed []byte) (map[string]interface{}, error) {
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, &ErrPayload{Cause: fmt.Errorf("snappy decode: %w", err)}
	}
	var body map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, &ErrPayload{Cause: fmt.Errorf("json decode: %w", err)}
	}
	return body, nil
}

// ErrPayload reports a JSON parse or Snappy decompress failure on receive
// (spec §7, PayloadError).
type ErrPayload struct {
	Cause error
}

func (e *ErrPayload) Error() string { return fmt.Sprintf("wire: payload error: %v", e.Cause) }
func (e *ErrPayload) Unwrap() error { return e.Cause }
