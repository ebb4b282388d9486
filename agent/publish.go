package agent

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pbosetti/mads-go/internal/timeutil"
	"github.com/pbosetti/mads-go/wire"
)

// Publish sends a JSON body on the agent's publish topic, through the
// codec's Snappy round trip and field injection (spec §4.1, §4.5). Startup
// and shutdown events shift their injected timestamp/timecode backwards by
// wire.StartupShutdownGrace; ordinary publishes pass grace=0.
func (a *Agent) Publish(body map[string]interface{}) error {
	return a.publishOnTopic(a.Descriptor.PubTopic, body, 0)
}

// PublishOn sends body on an explicit topic rather than the agent's default
// publish topic, used by the plug-in host for its "error" topic messages.
func (a *Agent) PublishOn(topic string, body map[string]interface{}) error {
	return a.publishOnTopic(topic, body, 0)
}

func (a *Agent) publishOnTopic(topic string, body map[string]interface{}, grace time.Duration) error {
	if a.pub == nil {
		return &ErrTransport{Reason: "publish socket not connected"}
	}
	now := time.Now().Add(-grace)
	tc := timeutil.Apply(timeutil.Timecode(now, a.Descriptor.TimecodeFPS), a.Descriptor.TimecodeOffset)
	compressed, err := a.codec.Prepare(body, now, tc)
	if err != nil {
		return fmt.Errorf("agent: prepare publish: %w", err)
	}
	msg := wire.DataMessage{Topic: topic, Parts: [][]byte{compressed}}
	if err := a.pub.send(msg); err != nil {
		return err
	}
	return nil
}

// PublishBlob sends a binary blob alongside a JSON meta descriptor carrying
// at least a "format" MIME-like tag (spec §3 "a blob message carries
// format ... in its meta part", §4.6 Producer's optional-blob output).
func (a *Agent) PublishBlob(topic string, meta map[string]interface{}, data []byte) error {
	if a.pub == nil {
		return &ErrTransport{Reason: "publish socket not connected"}
	}
	if meta == nil {
		meta = map[string]interface{}{}
	}
	if _, ok := meta["format"]; !ok {
		meta["format"] = "application/octet-stream"
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("agent: marshal blob meta: %w", err)
	}
	msg := wire.DataMessage{Topic: topic, Parts: [][]byte{metaJSON, data}}
	return a.pub.send(msg)
}
