package pluginhost

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"testing"
	"time"

	"github.com/pbosetti/mads-go/agent"
	"github.com/pbosetti/mads-go/broker"
)

// fakeProducer emits a fixed number of increasing counters, then signals
// shutdown once it runs its course — standing in for a compiled .so
// artifact since the plug-in loader cannot be exercised without the Go
// toolchain.
type fakeProducer struct {
	params Params
	n      int
	limit  int
	agent  *agent.Agent
}

func (p *fakeProducer) SetParams(params Params) error { p.params = params; return nil }
func (p *fakeProducer) Info() map[string]string       { return map[string]string{"kind": "fake-producer"} }
func (p *fakeProducer) Kind() string                  { return "fake-producer" }
func (p *fakeProducer) Error() string                 { return "" }

func (p *fakeProducer) GetOutput(out *Output) ReturnCode {
	p.n++
	out.Body = map[string]interface{}{"n": p.n}
	if p.n >= p.limit {
		p.agent.RequestShutdown()
	}
	return Success
}

// fakeConsumer records every body it receives.
type fakeConsumer struct {
	params Params
	agent  *agent.Agent
	want   int
	got    []int
}

func (c *fakeConsumer) SetParams(params Params) error { c.params = params; return nil }
func (c *fakeConsumer) Info() map[string]string       { return map[string]string{"kind": "fake-consumer"} }
func (c *fakeConsumer) Kind() string                  { return "fake-consumer" }
func (c *fakeConsumer) Error() string                 { return "" }

func (c *fakeConsumer) LoadData(in Input) ReturnCode {
	n, ok := numberValue(in.Body["n"])
	if !ok {
		return Warning
	}
	c.got = append(c.got, int(n))
	if len(c.got) >= c.want {
		c.agent.RequestShutdown()
	}
	return Success
}

func numberValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("allocate free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

const hostTOML = `
[agents]
frontend_address = "tcp://127.0.0.1:%d"
backend_address = "tcp://127.0.0.1:%d"
settings_address = "tcp://127.0.0.1:%d"
timecode_fps = 25

[gen]
pub_topic = "gen"

[sink]
sub_topic = "gen"
`

// TestProducerConsumerRoundTrip drives a fake Producer and a fake Consumer
// against a real broker through Host.RunProducer/RunConsumer, exercising
// the Success branch of the return-code table end to end.
func TestProducerConsumerRoundTrip(t *testing.T) {
	frontPort, backPort, settingsPort := freePort(t), freePort(t), freePort(t)
	toml := fmt.Sprintf(hostTOML, frontPort, backPort, settingsPort)

	cfg, err := broker.LoadConfig(toml)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	b, err := broker.New(broker.Options{Config: cfg, InstallDir: t.TempDir(), Mode: broker.ModeDaemon})
	if err != nil {
		t.Fatalf("broker.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)
	time.Sleep(100 * time.Millisecond)

	settingsFile, err := os.CreateTemp(t.TempDir(), "settings-*.toml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := settingsFile.WriteString(toml); err != nil {
		t.Fatal(err)
	}
	settingsFile.Close()

	sink := agent.New("sink", "")
	if err := sink.Init(agent.InitOptions{SettingsPath: settingsFile.Name()}); err != nil {
		t.Fatalf("sink Init: %v", err)
	}
	if err := sink.Connect(0); err != nil {
		t.Fatalf("sink Connect: %v", err)
	}
	defer sink.Disconnect()

	gen := agent.New("gen", "")
	if err := gen.Init(agent.InitOptions{SettingsPath: settingsFile.Name()}); err != nil {
		t.Fatalf("gen Init: %v", err)
	}
	if err := gen.Connect(0); err != nil {
		t.Fatalf("gen Connect: %v", err)
	}
	defer gen.Disconnect()

	time.Sleep(100 * time.Millisecond)

	producer := &fakeProducer{limit: 3, agent: gen}
	consumer := &fakeConsumer{want: 3, agent: sink}

	done := make(chan error, 1)
	go func() {
		done <- NewHost(sink, NewParams(nil, t.TempDir(), "sink")).RunConsumer(consumer)
	}()

	if err := NewHost(gen, NewParams(nil, t.TempDir(), "gen")).RunProducer(producer); err != nil {
		t.Fatalf("RunProducer: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunConsumer: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("consumer did not finish in time")
	}

	if len(consumer.got) != 3 || consumer.got[0] != 1 || consumer.got[2] != 3 {
		t.Errorf("got = %v, want [1 2 3]", consumer.got)
	}
}

// TestApplyResultCriticalRequestsShutdown exercises the Critical branch of
// the return-code table without needing a live transport: Critical must
// register a marker event and clear the running flag even though
// publishing the marker itself fails on a disconnected agent.
func TestApplyResultCriticalRequestsShutdown(t *testing.T) {
	a := agent.New("probe", "")
	h := NewHost(a, NewParams(nil, t.TempDir(), "probe"))
	role := &fakeProducer{}
	out := &Output{}
	if h.applyResult(role, Critical, out, true) {
		t.Error("Critical should not signal publish-worthy output")
	}
	if a.Running() {
		t.Error("Critical should clear the running flag")
	}
}

// TestApplyResultWarningMergesIntoBody exercises the Warning branch.
func TestApplyResultWarningMergesIntoBody(t *testing.T) {
	a := agent.New("probe", "")
	h := NewHost(a, NewParams(nil, t.TempDir(), "probe"))
	role := &fakeProducer{}
	out := &Output{Body: map[string]interface{}{"n": 1}, Warning: "running low"}
	if !h.applyResult(role, Warning, out, true) {
		t.Error("Warning should still be publish-worthy")
	}
	if out.Body["warning"] != "running low" {
		t.Errorf("warning not merged into body: %v", out.Body)
	}
}

// TestApplyResultErrorIncrementsCount exercises the ErrorCode branch.
func TestApplyResultErrorIncrementsCount(t *testing.T) {
	a := agent.New("probe", "")
	h := NewHost(a, NewParams(nil, t.TempDir(), "probe"))
	role := &fakeProducer{}
	h.applyResult(role, ErrorCode, &Output{}, true)
	h.applyResult(role, ErrorCode, &Output{}, true)
	if h.errCount != 2 {
		t.Errorf("errCount = %d, want 2", h.errCount)
	}
	h.applyResult(role, Success, &Output{}, true)
	if h.errCount != 0 {
		t.Errorf("Success should reset errCount, got %d", h.errCount)
	}
}

// TestApplyResultErrorConsumerCountsWithoutPublish exercises the Consumer
// row of the return-code table: "count, continue" — no "error" topic
// publish, unlike Producer/Transformer. The agent here is unconnected, so
// if RunConsumer's call to applyResult ever tried to publish, it would
// return a transport error that this test would have no way to surface —
// the only observable signal is that errCount still advances.
func TestApplyResultErrorConsumerCountsWithoutPublish(t *testing.T) {
	a := agent.New("probe", "")
	h := NewHost(a, NewParams(nil, t.TempDir(), "probe"))
	role := &fakeConsumer{}
	h.applyResult(role, ErrorCode, &Output{}, false)
	if h.errCount != 1 {
		t.Errorf("errCount = %d, want 1", h.errCount)
	}
}
