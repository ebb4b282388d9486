package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pbosetti/mads-go/broker"
	"github.com/pbosetti/mads-go/internal/netutil"
	"github.com/pbosetti/mads-go/internal/timeutil"
	"github.com/pbosetti/mads-go/security"
	"github.com/pbosetti/mads-go/wire"
)

// InitOptions configures Init. SettingsPath, when set, loads configuration
// from a local TOML file instead of the network settings service —
// spec §4.5.1 accepts "either a local TOML path or a remote URI".
type InitOptions struct {
	SettingsPath   string
	Crypto         bool
	KeyDir         string
	ClientKeyName  string
	ServerKeyName  string
	ReceiveTimeout time.Duration
}

// Agent is the runtime state machine described in spec §4.5: it owns two
// sockets and one transport context, fetches or loads its configuration
// exactly once, and enforces connect/disconnect idempotence.
//
// Grounded on tenzoki-agen/cellorg's public/agent.BaseAgent for the overall
// retry/connect/logging shape, generalized from a support-service-backed
// bootstrap to MADS's direct broker settings round trip, and on the
// original Mads::Agent (src/agent.hpp) for the public method surface.
type Agent struct {
	Descriptor Descriptor

	codec *wire.Codec

	debug bool

	initialized  int32
	connected    int32
	disconnected int32

	remoteControlEnabled  bool
	remoteControlThreaded bool
	controlBackgrounded   bool

	running atomic.Bool
	restart atomic.Bool

	receiveTimeout time.Duration

	pub *publishSocket
	sub *subscribeSocket

	clientAuth *security.ClientAuth

	statusMu  sync.RWMutex
	status    map[string]interface{}
	lastTopic string
	lastBlob  *BlobMessage

	settingsSnapshot string
	controlWorker    sync.WaitGroup
}

// BlobMessage is the last-received blob frame: a topic, a JSON meta
// descriptor, and the raw bytes (spec §4.5.4).
type BlobMessage struct {
	Topic string
	Meta  map[string]interface{}
	Bytes []byte
}

// New creates an agent descriptor with the given name and settings
// location, performing no I/O (spec §3 lifecycle: "Descriptor created with
// name+URI").
func New(name, settingsURI string) *Agent {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}
	a := &Agent{
		Descriptor: Descriptor{
			Name:        name,
			Hostname:    host,
			SettingsURI: settingsURI,
		},
		codec:          wire.NewCodec(),
		receiveTimeout: 500 * time.Millisecond,
		status:         make(map[string]interface{}),
	}
	a.running.Store(true)
	return a
}

// Init resolves endpoints, installs credentials, and loads or fetches the
// agent's configuration. It runs at most once per descriptor (spec §3).
func (a *Agent) Init(opts InitOptions) error {
	if !atomic.CompareAndSwapInt32(&a.initialized, 0, 1) {
		return &LifecycleError{Op: "Init", Reason: "already initialized"}
	}
	if opts.ReceiveTimeout > 0 {
		a.receiveTimeout = opts.ReceiveTimeout
	}

	if opts.Crypto {
		a.Descriptor.CryptoEnabled = true
		a.Descriptor.KeyDir = opts.KeyDir
		a.Descriptor.ClientKeyName = opts.ClientKeyName
		a.Descriptor.ServerKeyName = opts.ServerKeyName
		clientAuth, err := security.InstallClient(opts.KeyDir, opts.ClientKeyName, opts.ServerKeyName)
		if err != nil {
			return err
		}
		a.clientAuth = clientAuth
	}

	var cfg *broker.Config
	var remoteHost string

	if opts.SettingsPath != "" {
		text, err := os.ReadFile(opts.SettingsPath)
		if err != nil {
			return fmt.Errorf("agent: read settings file: %w", err)
		}
		cfg, err = broker.LoadConfig(string(text))
		if err != nil {
			return err
		}
	} else {
		resp, err := a.fetchSettings()
		if err != nil {
			return err
		}
		cfg, err = broker.LoadConfig(resp.TOML)
		if err != nil {
			return err
		}
		if len(resp.Attachment) > 0 {
			path, err := a.writeAttachment(cfg, resp.Attachment)
			if err != nil {
				return err
			}
			a.Descriptor.AttachmentPath = path
		}
		settingsEndpoint, err := netutil.SplitURL(a.Descriptor.SettingsURI)
		if err != nil {
			return fmt.Errorf("agent: parse settings URI: %w", err)
		}
		remoteHost = settingsEndpoint.Host

		localTC := timeutil.Timecode(time.Now(), cfg.Agents.TimecodeFPS)
		brokerTC, err := a.fetchTimecode(a.Descriptor.SettingsURI)
		if err != nil {
			return err
		}
		a.Descriptor.TimecodeOffset = timeutil.Offset(brokerTC, localTC)
	}

	a.Descriptor.TimecodeFPS = cfg.Agents.TimecodeFPS

	sec, err := cfg.AgentSectionFor(a.Descriptor.Name)
	if err != nil {
		return err
	}
	pubTopic := sec.PubTopic
	if pubTopic == "" {
		pubTopic = a.Descriptor.Name
	}
	a.Descriptor.PubTopic = pubTopic
	subTopics, err := sec.SubTopics()
	if err != nil {
		return err
	}
	a.Descriptor.SubTopics = subTopics
	a.Descriptor.TimeStepMS = sec.TimeStep

	pubEP, err := netutil.SplitURL(cfg.Agents.FrontendAddress)
	if err != nil {
		return fmt.Errorf("agent: parse frontend address: %w", err)
	}
	subEP, err := netutil.SplitURL(cfg.Agents.BackendAddress)
	if err != nil {
		return fmt.Errorf("agent: parse backend address: %w", err)
	}
	if remoteHost != "" && remoteHost != "*" {
		pubEP = pubEP.WithHost(remoteHost)
		subEP = subEP.WithHost(remoteHost)
	}
	a.Descriptor.PubEndpoint = pubEP
	a.Descriptor.SubEndpoint = subEP

	a.settingsSnapshot = cfg.Text()

	return nil
}

func (a *Agent) writeAttachment(cfg *broker.Config, data []byte) (string, error) {
	sec, err := cfg.AgentSectionFor(a.Descriptor.Name)
	if err != nil {
		return "", err
	}
	ext := sec.AttachmentExt
	if ext == "" {
		ext = "plugin"
	}
	dir := filepath.Join(os.TempDir(), "mads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("agent: create attachment dir: %w", err)
	}
	path := filepath.Join(dir, a.Descriptor.Name+"."+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("agent: write attachment: %w", err)
	}
	return path, nil
}

// EnableRemoteControl appends the control topic to the agent's
// subscriptions. It is legal only before Connect (spec §3 invariant).
// threaded requests a background dispatch thread even when the agent has
// other subscriptions (spec §9 Open Question ii: the richer signature).
func (a *Agent) EnableRemoteControl(threaded bool) error {
	if atomic.LoadInt32(&a.connected) == 1 {
		return &LifecycleError{Op: "EnableRemoteControl", Reason: "must be called before Connect"}
	}
	a.remoteControlEnabled = true
	a.remoteControlThreaded = threaded
	a.Descriptor.SubTopics = append(a.Descriptor.SubTopics, "control")
	return nil
}

// LogInfo logs an informational, agent-tagged message, matching the
// teacher's `"Agent %s: "+format` convention (public/agent/base.go).
func (a *Agent) LogInfo(format string, args ...interface{}) {
	logAgent(a.Descriptor.Name, format, args...)
}

// LogDebug logs only when debug mode is on.
func (a *Agent) LogDebug(format string, args ...interface{}) {
	if a.debug {
		logAgent(a.Descriptor.Name, format, args...)
	}
}

// SetDebug toggles debug-gated logging.
func (a *Agent) SetDebug(debug bool) { a.debug = debug }

// Running reports the process-wide cooperative cancellation flag (spec §5,
// §9 "Process-wide running flag").
func (a *Agent) Running() bool { return a.running.Load() }

// RequestShutdown clears the running flag, causing Loop to return after its
// current iteration.
func (a *Agent) RequestShutdown() { a.running.Store(false) }

// RequestRestart sets the restart flag and clears the running flag (spec
// §4.5.6 "restart" command effect).
func (a *Agent) RequestRestart() {
	a.restart.Store(true)
	a.running.Store(false)
}

// Restarting reports whether RequestRestart was called.
func (a *Agent) Restarting() bool { return a.restart.Load() }

// SettingsSnapshot returns the verbatim TOML text received at Init, used by
// event registration and the "info" remote-control command (spec §4.5.3,
// §4.5.6).
func (a *Agent) SettingsSnapshot() string { return a.settingsSnapshot }
