package agent

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Loop runs body repeatedly until the running flag is cleared by SIGINT,
// SIGTERM, remote control, or a plug-in critical return. If period is
// positive, each iteration is paced so iterations are not faster than
// period but may be slower when body itself is slow (spec §4.5.5). A
// non-positive period free-runs the body back-to-back.
//
// After the loop exits, if RequestRestart was called the process
// re-executes itself with the same argv (spec §9 "Re-exec as restart").
func (a *Agent) Loop(body func() error) error {
	var period time.Duration
	if a.Descriptor.TimeStepMS > 0 {
		period = time.Duration(a.Descriptor.TimeStepMS) * time.Millisecond
	}
	return a.LoopWithPeriod(body, period)
}

// LoopWithPeriod is Loop with an explicit period, overriding the
// descriptor's configured time step.
func (a *Agent) LoopWithPeriod(body func() error, period time.Duration) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan struct{})
	var once sync.Once
	go func() {
		select {
		case <-sigCh:
			a.RequestShutdown()
		case <-done:
		}
	}()
	defer once.Do(func() { close(done) })

	for a.Running() {
		var wg sync.WaitGroup
		var sleepErr error
		if period > 0 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				time.Sleep(period)
			}()
		}
		if err := body(); err != nil {
			a.LogDebug("loop body error: %v", err)
			sleepErr = err
		}
		if period > 0 {
			wg.Wait()
		}
		if sleepErr != nil && !a.Running() {
			break
		}
	}

	if a.Restarting() {
		return ReExecSelf()
	}
	return nil
}

// ReExecSelf replaces the current process with a fresh invocation of the
// same binary and argv, the agent-side counterpart to the broker's restart
// mechanism (spec §4.5.5, §9).
func ReExecSelf() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	if err := execReplace(exe, os.Args, os.Environ()); err != nil {
		return err
	}
	os.Exit(0)
	return nil
}
