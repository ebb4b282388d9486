package agent

import (
	"encoding/json"

	"github.com/pbosetti/mads-go/wire"
)

// Receive drains one frame from the subscribe socket. dontBlock requests a
// near-immediate poll instead of waiting up to the configured receive
// timeout (spec §4.5.4, §9 Open Question ii's richer signature).
//
// A JSON message whose topic is "control" is handed to the control handler
// instead of updating the status map, when remote control is enabled and
// dispatched in-band (spec §4.5.4).
func (a *Agent) Receive(dontBlock bool) (wire.Kind, error) {
	if a.sub == nil {
		return wire.KindNone, &ErrTransport{Reason: "subscribe socket not connected"}
	}
	msg, err := a.sub.receive(dontBlock)
	if err != nil {
		return wire.KindError, err
	}
	if len(msg.Parts) == 0 && msg.Topic == "" {
		return wire.KindNone, nil
	}

	frame := wire.Frame{Topic: msg.Topic, Parts: msg.Parts}
	switch frame.Classify() {
	case wire.KindJSON:
		body, err := a.codec.Decode(msg.Parts[0])
		if err != nil {
			return wire.KindError, err
		}
		if msg.Topic == "control" && a.remoteControlEnabled && !a.controlBackgrounded {
			a.dispatchControl(body)
			return wire.KindJSON, nil
		}
		a.statusMu.Lock()
		a.status[msg.Topic] = body
		a.lastTopic = msg.Topic
		a.statusMu.Unlock()
		return wire.KindJSON, nil
	case wire.KindBlob:
		var meta map[string]interface{}
		if err := json.Unmarshal(msg.Parts[0], &meta); err != nil {
			return wire.KindError, err
		}
		blob := &BlobMessage{Topic: msg.Topic, Meta: meta, Bytes: msg.Parts[1]}
		a.statusMu.Lock()
		a.lastBlob = blob
		a.statusMu.Unlock()
		return wire.KindBlob, nil
	default:
		return wire.KindError, &ErrTransport{Reason: "illegal frame part count"}
	}
}

// Status returns the last JSON message received on topic, and whether one
// has been received.
func (a *Agent) Status(topic string) (map[string]interface{}, bool) {
	a.statusMu.RLock()
	defer a.statusMu.RUnlock()
	v, ok := a.status[topic]
	return v, ok
}

// LastBlob returns the most recently received blob message, if any.
func (a *Agent) LastBlob() (*BlobMessage, bool) {
	a.statusMu.RLock()
	defer a.statusMu.RUnlock()
	return a.lastBlob, a.lastBlob != nil
}

// LastJSON returns the topic and body of the most recently received JSON
// message, and whether one has been received since Connect.
func (a *Agent) LastJSON() (string, map[string]interface{}, bool) {
	a.statusMu.RLock()
	defer a.statusMu.RUnlock()
	if a.lastTopic == "" {
		return "", nil, false
	}
	return a.lastTopic, a.status[a.lastTopic], true
}
