package agent

import "log"

// logAgent matches the teacher's "Agent %s: "+format convention from
// public/agent/base.go, prefixing every message with the agent's name.
func logAgent(name, format string, args ...interface{}) {
	log.Printf("Agent %s: "+format, append([]interface{}{name}, args...)...)
}
