package broker

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
)

// State is a node of the broker proxy's state machine (spec §4.4).
type State int

const (
	StateCreated State = iota
	StateBound
	StateForwarding
	StatePaused
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateBound:
		return "bound"
	case StateForwarding:
		return "forwarding"
	case StatePaused:
		return "paused"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Verb is one of the four ASCII steering commands the control plane
// accepts (spec §4.4).
type Verb string

const (
	VerbPause      Verb = "PAUSE"
	VerbResume     Verb = "RESUME"
	VerbTerminate  Verb = "TERMINATE"
	VerbStatistics Verb = "STATISTICS"
)

// Control is the broker's steering plane: it translates ASCII verbs (from a
// terminal, a remote steering connection, or a file watcher) into state
// transitions on a Proxy. Unlike the original, this implementation talks to
// a hand-rolled TCP proxy rather than zmqpp's steerable proxy, so the
// documented PAUSE/RESUME inversion bug (spec §4.4 "Bug note", §9 Open
// Question i) does not apply here and is deliberately NOT reproduced.
type Control struct {
	proxy   *Proxy
	debug   bool
	state   State
	restart bool
}

// NewControl builds a Control bound to proxy, starting in StateBound.
func NewControl(proxy *Proxy, debug bool) *Control {
	return &Control{proxy: proxy, debug: debug, state: StateBound}
}

// State returns the control plane's current state.
func (c *Control) State() State { return c.state }

// Apply executes verb against the proxy and returns the STATISTICS payload
// when verb is VerbStatistics, nil otherwise. It returns true when the
// control plane should terminate the broker process after this call.
func (c *Control) Apply(verb Verb) (stats []byte, terminate bool) {
	switch verb {
	case VerbPause:
		c.proxy.Pause()
		c.state = StatePaused
		if c.debug {
			log.Printf("broker: paused")
		}
	case VerbResume:
		c.proxy.Resume()
		c.state = StateForwarding
		if c.debug {
			log.Printf("broker: resumed")
		}
	case VerbStatistics:
		return c.proxy.stats.Encode(), false
	case VerbTerminate:
		c.state = StateTerminated
		return nil, true
	}
	return nil, false
}

// RequestRestart marks the control plane so that, once terminated, the
// broker process re-executes itself with the same argv (spec §4.4's
// TERMINATE → re-exec transition, triggered by the 'x' key or a watched
// configuration change).
func (c *Control) RequestRestart() { c.restart = true }

// Restarting reports whether a restart was requested.
func (c *Control) Restarting() bool { return c.restart }

// RunInteractive reads single-key terminal input and translates it into
// steering verbs: p/P=PAUSE, r/R=RESUME, i/I=STATISTICS, q/Q=TERMINATE,
// x/X=set-restart-flag+TERMINATE (spec §4.4). It also listens on reload,
// which an external file watcher (out of this package's scope, spec §1 "the
// file-watcher used by the broker to self-reload" is an external
// collaborator) may signal to inject the same effect as the 'x' key.
func (c *Control) RunInteractive(ctx context.Context, in *os.File, reload <-chan struct{}) {
	keys := make(chan byte, 1)
	go func() {
		r := bufio.NewReader(in)
		for {
			b, err := r.ReadByte()
			if err != nil {
				close(keys)
				return
			}
			keys <- b
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-reload:
			c.RequestRestart()
			c.Apply(VerbTerminate)
			return
		case b, ok := <-keys:
			if !ok {
				return
			}
			switch b {
			case 'p', 'P':
				c.Apply(VerbPause)
			case 'r', 'R':
				c.Apply(VerbResume)
			case 'i', 'I':
				stats, _ := c.Apply(VerbStatistics)
				printStats(stats)
			case 'q', 'Q':
				c.Apply(VerbTerminate)
				return
			case 'x', 'X':
				c.RequestRestart()
				c.Apply(VerbTerminate)
				return
			}
		}
	}
}

func printStats(buf []byte) {
	snap, err := DecodeStats(buf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "broker: %v\n", err)
		return
	}
	fmt.Printf("front: %d msgs in (%d bytes), %d msgs out (%d bytes)\n", snap[0], snap[1], snap[2], snap[3])
	fmt.Printf("back:  %d msgs in (%d bytes), %d msgs out (%d bytes)\n", snap[4], snap[5], snap[6], snap[7])
}

// ReExec replaces the current process image with a fresh invocation of the
// same binary and argv, implementing the broker's restart-on-reload design
// (spec §9 "Re-exec as restart").
func ReExec() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("broker: resolve executable for restart: %w", err)
	}
	env := os.Environ()
	args := os.Args
	if err := syscallExec(exe, args, env); err != nil {
		return fmt.Errorf("broker: re-exec: %w", err)
	}
	return nil
}

// syscallExec is a seam over exec.Command for platforms where a true
// in-place execve is undesirable in tests; production builds use it to
// spawn a replacement process and then exit, approximating the original's
// execv-based restart without requiring build-tag-gated syscall access.
func syscallExec(path string, args []string, env []string) error {
	cmd := exec.Command(path, args[1:]...)
	cmd.Env = env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		_ = cmd.Wait()
		os.Exit(0)
	}()
	return nil
}
