package agent

import (
	"sync/atomic"
	"testing"
)

func TestNewAgentDefaults(t *testing.T) {
	a := New("echo", "tcp://127.0.0.1:9092")
	if a.Descriptor.Name != "echo" {
		t.Errorf("Name = %q", a.Descriptor.Name)
	}
	if !a.Running() {
		t.Error("new agent should start with running flag set")
	}
	if a.Restarting() {
		t.Error("new agent should not be restarting")
	}
}

func TestEnableRemoteControlBeforeConnectOnly(t *testing.T) {
	a := New("echo", "tcp://127.0.0.1:9092")
	if err := a.EnableRemoteControl(false); err != nil {
		t.Fatalf("EnableRemoteControl before connect: %v", err)
	}
	if len(a.Descriptor.SubTopics) != 1 || a.Descriptor.SubTopics[0] != "control" {
		t.Errorf("SubTopics = %v", a.Descriptor.SubTopics)
	}

	b := New("echo", "tcp://127.0.0.1:9092")
	atomic.StoreInt32(&b.connected, 1)
	if err := b.EnableRemoteControl(false); err == nil {
		t.Error("expected LifecycleError for EnableRemoteControl after connect")
	}
}

func TestInitRunsAtMostOnce(t *testing.T) {
	a := New("echo", "")
	path := t.TempDir() + "/does-not-exist.toml"
	_ = a.Init(InitOptions{SettingsPath: path})

	err := a.Init(InitOptions{SettingsPath: path})
	if err == nil {
		t.Fatal("expected LifecycleError on second Init")
	}
	if _, ok := err.(*LifecycleError); !ok {
		t.Errorf("expected *LifecycleError, got %T: %v", err, err)
	}
}

func TestRequestShutdownAndRestart(t *testing.T) {
	s := New("echo", "")
	s.RequestShutdown()
	if s.Running() {
		t.Error("RequestShutdown should clear running flag")
	}
	if s.Restarting() {
		t.Error("RequestShutdown should not set restart flag")
	}

	a := New("echo", "")
	a.RequestRestart()
	if a.Running() {
		t.Error("RequestRestart should clear running flag")
	}
	if !a.Restarting() {
		t.Error("RequestRestart should set restart flag")
	}
}
