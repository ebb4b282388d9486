package agent

import (
	"log"

	"github.com/pbosetti/mads-go/wire"
)

// dispatchControl interprets a decoded control-topic body: {"cmd":
// "shutdown"|"restart"|"info"}. Unknown commands
// are silently ignored; malformed bodies are logged and ignored (spec
// §4.5.6).
func (a *Agent) dispatchControl(body map[string]interface{}) {
	cmdVal, ok := body["cmd"]
	if !ok {
		a.LogDebug("malformed control message: missing cmd")
		return
	}
	cmd, ok := cmdVal.(string)
	if !ok {
		a.LogDebug("malformed control message: cmd is not a string")
		return
	}

	switch cmd {
	case "shutdown":
		a.RequestShutdown()
	case "restart":
		a.RequestRestart()
	case "info":
		a.publishOnTopic("info", map[string]interface{}{
			"name":     a.Descriptor.Name,
			"settings": a.settingsSnapshot,
		}, 0)
	default:
		// Unknown commands are silently ignored per spec.
	}
}

// startRemoteControlWorker runs a background dispatch thread for control
// messages when the agent has no other subscriptions, per spec §4.5.6: "If
// the agent has no other subscriptions, a background thread is started to
// receive and dispatch; otherwise control messages are dispatched in-band."
// Receive's own in-band dispatch is disabled while this worker owns
// dispatch (controlBackgrounded), so this loop dispatches directly.
func (a *Agent) startRemoteControlWorker() {
	a.controlWorker.Add(1)
	go func() {
		defer a.controlWorker.Done()
		for a.Running() {
			kind, err := a.Receive(false)
			if err != nil {
				log.Printf("Agent %s: remote control receive error: %v", a.Descriptor.Name, err)
				continue
			}
			if kind != wire.KindJSON {
				continue
			}
			topic, body, ok := a.LastJSON()
			if !ok || topic != "control" {
				continue
			}
			a.dispatchControl(body)
		}
	}()
}
