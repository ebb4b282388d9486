package agent

import (
	"encoding/json"
	"fmt"
	"net"
	"testing"
)

func freeTCPPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("allocate free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func sprintfTOML(tmpl string, frontPort, backPort, settingsPort int) string {
	return fmt.Sprintf(tmpl, frontPort, backPort, settingsPort)
}

func numberValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	default:
		return 0, false
	}
}
