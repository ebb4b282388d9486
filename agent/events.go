package agent

import (
	"time"

	"github.com/pbosetti/mads-go/version"
	"github.com/pbosetti/mads-go/wire"
)

// EventKind enumerates the event-kind classifier from spec §3.
type EventKind string

const (
	EventStartup   EventKind = "startup"
	EventShutdown  EventKind = "shutdown"
	EventMarker    EventKind = "marker"
	EventMarkerIn  EventKind = "marker-in"
	EventMarkerOut EventKind = "marker-out"
	EventMessage   EventKind = "message"
)

const metadataTopic = "metadata"

// RegisterEvent publishes an Event on the metadata topic (spec §4.5.3).
// Startup is published at once from a detached goroutine, with its
// injected timestamp and timecode shifted back by wire.StartupShutdownGrace;
// it is not delayed. Shutdown carries the same shift and is awaited (for at
// most 2 seconds) so the transport has time to flush before the process
// exits; markers are emitted immediately and detached. This asymmetry is intentional (spec §9 "Detached startup
// task").
func (a *Agent) RegisterEvent(kind EventKind, info map[string]interface{}) {
	body := map[string]interface{}{
		"kind":              string(kind),
		"name":              a.Descriptor.Name,
		"lib_version":       version.LibVersion,
		"event_name":        string(kind),
		"timecode_offset":   a.Descriptor.TimecodeOffset,
		"settings_path":     a.Descriptor.SettingsURI,
		"settings_snapshot": a.settingsSnapshot,
	}
	if info != nil {
		body["info"] = info
	}

	switch kind {
	case EventStartup:
		// Detached: the caller does not block on this completing.
		go a.publishOnTopic(metadataTopic, body, wire.StartupShutdownGrace)
	case EventShutdown:
		done := make(chan struct{})
		go func() {
			defer close(done)
			a.publishOnTopic(metadataTopic, body, wire.StartupShutdownGrace)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	default:
		go a.publishOnTopic(metadataTopic, body, 0)
	}
}
