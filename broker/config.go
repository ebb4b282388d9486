package broker

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// AgentsSection is the global `[agents]` section of the configuration
// document: broker endpoints, timecode frame-rate, and security policy
// (spec §6 configuration format table).
type AgentsSection struct {
	FrontendAddress string   `toml:"frontend_address"`
	BackendAddress  string   `toml:"backend_address"`
	SettingsAddress string   `toml:"settings_address"`
	TimecodeFPS     float64  `toml:"timecode_fps"`
	IPWhitelist     []string `toml:"ip_whitelist"`
	AuthVerbose     bool     `toml:"auth_verbose"`
}

// AgentSection is a per-agent `[<name>]` section.
type AgentSection struct {
	PubTopic      string      `toml:"pub_topic"`
	SubTopic      interface{} `toml:"sub_topic"`
	TimeStep      float64     `toml:"time_step"`
	Attachment    string      `toml:"attachment"`
	AttachmentExt string      `toml:"attachment_ext"`
}

// SubTopics normalizes SubTopic (absent, a bare string, or a string array in
// the source TOML) into a slice, per spec §3's "string, array, or absent"
// invariant for sub_topic.
func (a AgentSection) SubTopics() ([]string, error) {
	switch v := a.SubTopic.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("config: sub_topic array element %v is not a string", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("config: sub_topic has unsupported type %T", v)
	}
}

// Config is the full authoritative TOML document: the global section plus
// every named per-agent section, captured via toml.MetaData so that an
// arbitrary set of agent names can be recovered (spec §3 Configuration).
type Config struct {
	Agents AgentsSection `toml:"agents"`

	raw  map[string]toml.Primitive
	meta toml.MetaData
	text string
}

func defaultedAgentsSection() AgentsSection {
	return AgentsSection{
		FrontendAddress: "tcp://*:9090",
		BackendAddress:  "tcp://*:9091",
		SettingsAddress: "tcp://*:9092",
		TimecodeFPS:     25,
	}
}

// LoadConfig parses a TOML document, applying the defaults from spec §6
// when a key is absent.
func LoadConfig(text string) (*Config, error) {
	var doc struct {
		Agents AgentsSection `toml:"agents"`
	}
	doc.Agents = defaultedAgentsSection()

	raw := map[string]toml.Primitive{}
	meta, err := toml.Decode(text, &raw)
	if err != nil {
		return nil, &ConfigError{Reason: "parse TOML", Err: err}
	}
	// Re-decode the [agents] section on top of the defaults.
	if agentsPrim, ok := raw["agents"]; ok {
		if err := meta.PrimitiveDecode(agentsPrim, &doc.Agents); err != nil {
			return nil, &ConfigError{Reason: "decode [agents]", Err: err}
		}
	}
	delete(raw, "agents")

	return &Config{Agents: doc.Agents, raw: raw, meta: meta, text: text}, nil
}

// AgentSectionFor decodes the named per-agent section. Per spec §8, a
// missing section is a ConfigError quoting the agent's name.
func (c *Config) AgentSectionFor(name string) (AgentSection, error) {
	prim, ok := c.raw[name]
	if !ok {
		return AgentSection{}, &ConfigError{Reason: fmt.Sprintf("missing agent section %q", name)}
	}
	sec := AgentSection{AttachmentExt: "plugin"}
	if err := c.meta.PrimitiveDecode(prim, &sec); err != nil {
		return AgentSection{}, &ConfigError{Reason: fmt.Sprintf("decode agent section %q", name), Err: err}
	}
	return sec, nil
}

// Text returns the original TOML document text, which is what the settings
// service hands back verbatim to requesting agents.
func (c *Config) Text() string { return c.text }

// ConfigError reports a configuration load or lookup failure (spec §7).
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("config: %s", e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }
