package pluginhost

import "testing"

func TestNewParamsInjectsPrefixAndAgentID(t *testing.T) {
	p := NewParams(map[string]interface{}{"rate": int64(5)}, "/opt/mads", "sensor-1")
	if p.String("install_prefix", "") != "/opt/mads" {
		t.Errorf("install_prefix = %v", p["install_prefix"])
	}
	if p.String("agent_id", "") != "sensor-1" {
		t.Errorf("agent_id = %v", p["agent_id"])
	}
	if p.Int("rate", 0) != 5 {
		t.Errorf("rate = %v", p["rate"])
	}
}

func TestNewParamsOmitsEmptyAgentID(t *testing.T) {
	p := NewParams(nil, "/opt/mads", "")
	if _, ok := p["agent_id"]; ok {
		t.Error("agent_id should be absent when empty")
	}
}

func TestApplyOverrideCoercion(t *testing.T) {
	p := Params{}
	for _, raw := range []string{"count=42", "scale=1.5", "name=north"} {
		if err := p.ApplyOverride(raw); err != nil {
			t.Fatalf("ApplyOverride(%q): %v", raw, err)
		}
	}
	if p.Int("count", 0) != 42 {
		t.Errorf("count = %v", p["count"])
	}
	if v, ok := p["scale"].(float64); !ok || v != 1.5 {
		t.Errorf("scale = %v", p["scale"])
	}
	if p.String("name", "") != "north" {
		t.Errorf("name = %v", p["name"])
	}
}

func TestApplyOverrideMalformed(t *testing.T) {
	p := Params{}
	if err := p.ApplyOverride("no-equals-sign"); err == nil {
		t.Fatal("expected error for malformed override")
	}
}

func TestParamsBoolDefaults(t *testing.T) {
	p := Params{"silent": "true", "verbose": "not-a-bool"}
	if !p.Bool("silent", false) {
		t.Error("silent should parse true")
	}
	if p.Bool("verbose", false) {
		t.Error("unparseable bool should fall back to default")
	}
	if !p.Bool("missing", true) {
		t.Error("missing key should fall back to default")
	}
}
