// Package agent implements the MADS agent runtime: the lifecycle state
// machine that bootstraps an agent, connects its publish/subscribe
// sockets, runs its cooperative loop, and handles remote control (spec
// §4.5). It is grounded on tenzoki-agen/cellorg's public/agent.BaseAgent
// (retry-connect, descriptor, lifecycle logging) and the original C++
// Mads::Agent's public API shape (src/agent.hpp), generalized from GOX's
// support-service-backed bootstrap onto MADS's direct settings-service
// round trip.
package agent

import (
	"os"

	"github.com/pbosetti/mads-go/internal/netutil"
)

// Descriptor is the agent's immutable-after-connect configuration (spec §3
// Agent descriptor).
type Descriptor struct {
	Name        string
	Hostname    string
	SettingsURI string

	PubEndpoint netutil.Endpoint
	SubEndpoint netutil.Endpoint
	PubTopic    string
	SubTopics   []string

	TimeStepMS     float64
	TimecodeFPS    float64
	TimecodeOffset float64

	AgentID        string
	AttachmentPath string

	CryptoEnabled bool
	KeyDir        string
	ClientKeyName string
	ServerKeyName string
}

// NameFromBinary derives an agent name from the invoked binary path by
// stripping a known "mads-" prefix, per spec §3 "Name is derived from the
// invoked binary by stripping a known prefix."
func NameFromBinary(prefix string) string {
	exe, err := netutil.ExecutablePath()
	if err != nil {
		exe = os.Args[0]
	}
	base := exe
	for i := len(exe) - 1; i >= 0; i-- {
		if exe[i] == '/' || exe[i] == '\\' {
			base = exe[i+1:]
			break
		}
	}
	if len(base) > len(prefix) && base[:len(prefix)] == prefix {
		return base[len(prefix):]
	}
	return base
}
