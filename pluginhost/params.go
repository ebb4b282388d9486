package pluginhost

import (
	"fmt"
	"strconv"
)

// Params is the merged settings-plus-CLI-overrides bag every plug-in role
// receives through SetParams (spec §4.6). The host injects the
// installation prefix and an optional agent identifier; CLI overrides of
// the form key=value are applied on top.
type Params map[string]interface{}

// NewParams builds a Params from the agent's per-agent TOML section plus
// the host-injected prefix and agent identifier.
func NewParams(section map[string]interface{}, installPrefix, agentID string) Params {
	p := Params{}
	for k, v := range section {
		p[k] = v
	}
	p["install_prefix"] = installPrefix
	if agentID != "" {
		p["agent_id"] = agentID
	}
	return p
}

// ApplyOverride parses a CLI "key=value" argument and sets it in p. Values
// are parsed as integer, then floating-point, then left as a string (spec
// §4.6 "values are parsed as integer, then floating-point, then string").
func (p Params) ApplyOverride(raw string) error {
	key, value, ok := splitKV(raw)
	if !ok {
		return &PluginError{Op: "parse CLI override", Err: fmt.Errorf("malformed override %q", raw)}
	}
	p[key] = coerce(value)
	return nil
}

func splitKV(raw string) (string, string, bool) {
	for i := 0; i < len(raw); i++ {
		if raw[i] == '=' {
			return raw[:i], raw[i+1:], true
		}
	}
	return "", "", false
}

func coerce(value string) interface{} {
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}

// Bool reads a boolean override, defaulting to def if absent or
// unparseable — used for the "silent" and "dont_block" overrides.
func (p Params) Bool(key string, def bool) bool {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(t)
		if err != nil {
			return def
		}
		return b
	default:
		return def
	}
}

// String reads a string override, defaulting to def if absent.
func (p Params) String(key, def string) string {
	v, ok := p[key]
	if !ok {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

// Int reads an integer override, defaulting to def if absent or of the
// wrong type. Host does not read a "receive_timeout" parameter; the agent's
// receive timeout is set through agent.InitOptions.ReceiveTimeout.
func (p Params) Int(key string, def int64) int64 {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case int64:
		return t
	case float64:
		return int64(t)
	case string:
		i, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return def
		}
		return i
	default:
		return def
	}
}
