package pluginhost

import (
	"github.com/pbosetti/mads-go/agent"
	"github.com/pbosetti/mads-go/wire"
)

// Host drives one plug-in role against an initialized, connected Agent,
// translating the agent's publish/receive calls into the plug-in's
// capability-interface contract and enforcing the return-code table of
// spec §4.6.
//
// Grounded on tenzoki-agen/cellorg's agent-framework event loop shape
// (public/agent Run/Process dispatch), generalized from cellorg's
// cell-pipeline processor contract to MADS's producer/transformer/consumer
// roles and five-valued return codes.
type Host struct {
	Agent  *agent.Agent
	Params Params

	silent    bool
	dontBlock bool

	errCount int
}

// NewHost builds a Host from an initialized agent and a merged parameter
// bag. silent and dont_block Params overrides gate, respectively, whether
// Warning messages are logged and whether Receive blocks (spec §4.6).
func NewHost(a *agent.Agent, params Params) *Host {
	return &Host{
		Agent:     a,
		Params:    params,
		silent:    params.Bool("silent", false),
		dontBlock: params.Bool("dont_block", false),
	}
}

// applyResult implements the shared half of the return-code table that is
// identical across all three roles: Warning logs (unless silent) and
// merges the warning text into the body; ErrorCode counts the failure and
// the loop continues, with no limit on the count; Critical registers a marker event and
// requests shutdown. publishOnError selects the Producer/Transformer
// "error" row ("count, publish {error: ...}, continue") versus Consumer's
// ("count, continue" — no publish), per spec §4.6's return-code table. It
// returns true when the caller should still publish whatever Output.Body
// it was given.
func (h *Host) applyResult(role Capabilities, code ReturnCode, out *Output, publishOnError bool) bool {
	switch code {
	case Success:
		h.errCount = 0
		return true
	case Warning:
		h.errCount = 0
		if out.Warning != "" {
			if out.Body == nil {
				out.Body = map[string]interface{}{}
			}
			out.Body["warning"] = out.Warning
			if !h.silent {
				h.Agent.LogInfo("%s warning: %s", role.Kind(), out.Warning)
			}
		}
		return true
	case Retry:
		h.Agent.LogDebug("%s requested retry", role.Kind())
		return false
	case ErrorCode:
		h.errCount++
		h.Agent.LogInfo("%s error: %s", role.Kind(), role.Error())
		if publishOnError {
			h.Agent.PublishOn("error", map[string]interface{}{
				"kind":  role.Kind(),
				"error": role.Error(),
				"count": h.errCount,
			})
		}
		return false
	case Critical:
		h.Agent.LogInfo("%s critical: %s", role.Kind(), role.Error())
		h.Agent.RegisterEvent(agent.EventMarker, map[string]interface{}{
			"reason": "critical",
			"kind":   role.Kind(),
			"error":  role.Error(),
		})
		h.Agent.RequestShutdown()
		return false
	default:
		return false
	}
}

// RunProducer drives a Producer through the agent's main loop: each
// iteration calls GetOutput and, on success or warning, publishes the
// resulting body and optional blob (spec §4.6 Producer contract).
func (h *Host) RunProducer(p Producer) error {
	if err := p.SetParams(h.Params); err != nil {
		return &PluginError{Op: "set params", Err: err}
	}
	return h.Agent.Loop(func() error {
		out := &Output{}
		code := p.GetOutput(out)
		if !h.applyResult(p, code, out, true) {
			return nil
		}
		return h.publish(out)
	})
}

// RunTransformer drives a Transformer through the agent's main loop: each
// iteration receives a frame, hands it to LoadData, then calls Process and
// publishes its output (spec §4.6 Transformer contract).
func (h *Host) RunTransformer(t Transformer) error {
	if err := t.SetParams(h.Params); err != nil {
		return &PluginError{Op: "set params", Err: err}
	}
	return h.Agent.Loop(func() error {
		in, ok, err := h.receive()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if code := t.LoadData(in); !h.applyResult(t, code, &Output{}, true) {
			return nil
		}
		out := &Output{}
		code := t.Process(out)
		if !h.applyResult(t, code, out, true) {
			return nil
		}
		return h.publish(out)
	})
}

// RunConsumer drives a Consumer through the agent's main loop: each
// iteration receives a frame and hands it to LoadData with no further
// output (spec §4.6 Consumer contract).
func (h *Host) RunConsumer(c Consumer) error {
	if err := c.SetParams(h.Params); err != nil {
		return &PluginError{Op: "set params", Err: err}
	}
	return h.Agent.Loop(func() error {
		in, ok, err := h.receive()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		code := c.LoadData(in)
		h.applyResult(c, code, &Output{}, false)
		return nil
	})
}

func (h *Host) receive() (Input, bool, error) {
	kind, err := h.Agent.Receive(h.dontBlock)
	if err != nil {
		return Input{}, false, err
	}
	switch kind {
	case wire.KindJSON:
		topic, body, ok := h.Agent.LastJSON()
		if !ok {
			return Input{}, false, nil
		}
		return Input{Topic: topic, Body: body}, true, nil
	case wire.KindBlob:
		blob, ok := h.Agent.LastBlob()
		if !ok {
			return Input{}, false, nil
		}
		return Input{
			Topic: blob.Topic,
			Blob:  &BlobPayload{Meta: blob.Meta, Bytes: blob.Bytes},
		}, true, nil
	default:
		return Input{}, false, nil
	}
}

func (h *Host) publish(out *Output) error {
	if out.Blob != nil {
		if err := h.Agent.PublishBlob(h.Agent.Descriptor.PubTopic, out.Blob.Meta, out.Blob.Bytes); err != nil {
			return err
		}
	}
	if out.Body != nil {
		return h.Agent.Publish(out.Body)
	}
	return nil
}
