// Package pluginhost implements the MADS plugin host (C6): a
// role-parameterized driver that loads a native plug-in artifact, adapts
// the agent's message stream to the plug-in's contract, and enforces the
// five-valued return-code discipline (spec §4.6). Grounded on the
// capability-set design note in spec §9 ("Polymorphism over roles") and on
// the original Mads::Agent's plug-in-facing API shape (src/agent.hpp).
package pluginhost

import "fmt"

// ReturnCode is the five-valued discipline every plug-in role returns from
// its data-producing methods (spec §4.6).
type ReturnCode int

const (
	Success ReturnCode = iota
	Warning
	Retry
	ErrorCode
	Critical
)

func (r ReturnCode) String() string {
	switch r {
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Retry:
		return "retry"
	case ErrorCode:
		return "error"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

// BlobPayload is a binary blob plus its JSON meta descriptor, the wire-level
// shape a Producer may emit alongside its JSON output and a Transformer or
// Consumer may receive as input (spec §3, §4.1 blob data frame).
type BlobPayload struct {
	Meta  map[string]interface{}
	Bytes []byte
}

// Output is a plug-in's per-iteration result: a JSON body, an optional
// blob, and an optional warning message merged into the body on a Warning
// return (spec §4.6 return-code table).
type Output struct {
	Body    map[string]interface{}
	Blob    *BlobPayload
	Warning string
}

// Input is a plug-in's per-iteration input: the JSON body for the current
// topic and any accompanying blob.
type Input struct {
	Topic string
	Body  map[string]interface{}
	Blob  *BlobPayload
}

// Capabilities is the small common capability set shared by all three
// plug-in roles (spec §4.6, §9 "Shared behavior ... lives in a small common
// capability set").
type Capabilities interface {
	SetParams(Params) error
	Info() map[string]string
	Kind() string
	Error() string
}

// Producer emits data with no input: get_output(out, optional-blob) →
// return-code (spec §4.6).
type Producer interface {
	Capabilities
	GetOutput(out *Output) ReturnCode
}

// Transformer consumes one input and emits one output: load_data then
// process (spec §4.6).
type Transformer interface {
	Capabilities
	LoadData(in Input) ReturnCode
	Process(out *Output) ReturnCode
}

// Consumer consumes one input with no output: load_data(in, topic) →
// return-code (spec §4.6).
type Consumer interface {
	Capabilities
	LoadData(in Input) ReturnCode
}

// PluginError reports an artifact that could not be found or a factory
// that could not be resolved (spec §7).
type PluginError struct {
	Op   string
	Path string
	Err  error
}

func (e *PluginError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("pluginhost: %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("pluginhost: %s: %v", e.Op, e.Err)
}

func (e *PluginError) Unwrap() error { return e.Err }
