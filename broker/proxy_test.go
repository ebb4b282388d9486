package broker

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/pbosetti/mads-go/wire"
)

func startTestProxy(t *testing.T) (*Proxy, string, string) {
	t.Helper()
	proxy := NewProxy("127.0.0.1:0", "127.0.0.1:0", false, nil)
	front, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen front: %v", err)
	}
	back, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen back: %v", err)
	}
	proxy.frontListener = front
	proxy.backListener = back

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go proxy.acceptLoop(ctx, front, proxy.handleFrontConn)
	go proxy.acceptLoop(ctx, back, proxy.handleBackConn)

	return proxy, front.Addr().String(), back.Addr().String()
}

func TestProxyFanOut(t *testing.T) {
	_, frontAddr, backAddr := startTestProxy(t)

	subConn, err := net.Dial("tcp", backAddr)
	if err != nil {
		t.Fatalf("dial back: %v", err)
	}
	defer subConn.Close()
	if err := json.NewEncoder(subConn).Encode(wire.SubscribeRequest{Prefixes: []string{"echo"}}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	pubConn, err := net.Dial("tcp", frontAddr)
	if err != nil {
		t.Fatalf("dial front: %v", err)
	}
	defer pubConn.Close()
	if err := json.NewEncoder(pubConn).Encode(wire.DataMessage{Topic: "echo", Parts: [][]byte{[]byte(`{"n":1}`)}}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	subConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got wire.DataMessage
	if err := json.NewDecoder(subConn).Decode(&got); err != nil {
		t.Fatalf("decode fan-out: %v", err)
	}
	if got.Topic != "echo" {
		t.Errorf("Topic = %q, want echo", got.Topic)
	}
	if string(got.Parts[0]) != `{"n":1}` {
		t.Errorf("Parts[0] = %q", got.Parts[0])
	}
}

func TestProxyPrefixMismatchIsNotDelivered(t *testing.T) {
	_, frontAddr, backAddr := startTestProxy(t)

	subConn, err := net.Dial("tcp", backAddr)
	if err != nil {
		t.Fatalf("dial back: %v", err)
	}
	defer subConn.Close()
	if err := json.NewEncoder(subConn).Encode(wire.SubscribeRequest{Prefixes: []string{"metadata"}}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	pubConn, err := net.Dial("tcp", frontAddr)
	if err != nil {
		t.Fatalf("dial front: %v", err)
	}
	defer pubConn.Close()
	if err := json.NewEncoder(pubConn).Encode(wire.DataMessage{Topic: "echo", Parts: [][]byte{[]byte(`{}`)}}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	subConn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var got wire.DataMessage
	if err := json.NewDecoder(subConn).Decode(&got); err == nil {
		t.Fatalf("expected no delivery for mismatched prefix, got %+v", got)
	}
}

func TestSubscriberMatches(t *testing.T) {
	s := &subscriber{prefixes: []string{"data"}}
	if !s.matches("data-1") {
		t.Error("expected prefix match")
	}
	if s.matches("other") {
		t.Error("expected no match")
	}
	all := &subscriber{prefixes: []string{""}}
	if !all.matches("anything") {
		t.Error("expected subscribe-to-all to match everything")
	}
}

func TestValidateDataMessage(t *testing.T) {
	if err := validateDataMessage(wire.DataMessage{Topic: "t"}); err == nil {
		t.Error("expected error for 1 total part")
	}
	if err := validateDataMessage(wire.DataMessage{Topic: "t", Parts: [][]byte{{1}}}); err != nil {
		t.Errorf("unexpected error for 2 parts: %v", err)
	}
	if err := validateDataMessage(wire.DataMessage{Topic: "t", Parts: [][]byte{{1}, {2}, {3}}}); err == nil {
		t.Error("expected error for too many parts")
	}
}

func TestStatsEncodeDecode(t *testing.T) {
	var s Stats
	s.addFrontIn(10)
	s.addFrontOut(10)
	s.addBackOut(10)
	buf := s.Encode()
	snap, err := DecodeStats(buf)
	if err != nil {
		t.Fatalf("DecodeStats: %v", err)
	}
	if snap[0] != 1 || snap[1] != 10 {
		t.Errorf("front in stats = %v", snap)
	}
}
