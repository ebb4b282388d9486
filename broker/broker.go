package broker

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/pbosetti/mads-go/security"
)

// Mode selects the broker proxy's run mode (spec §4.4).
type Mode int

const (
	ModeDaemon Mode = iota
	ModeInteractive
	ModeDocker
)

// Options configures a Broker instance.
type Options struct {
	Config         *Config
	InstallDir     string
	Debug          bool
	Mode           Mode
	Crypto         bool
	KeyDir         string
	ServerKeyName  string
	ClientKeyNames []string
	Reload         <-chan struct{}
}

// Broker composes the forwarding proxy, the settings service, and the
// steering control plane that share only the broker's running flag (spec
// §4.3 "independent concern", §4.4 state machine).
type Broker struct {
	opts     Options
	proxy    *Proxy
	settings *SettingsService
	control  *Control
	auth     *security.ServerAuth
}

// New builds a Broker ready to Run. If opts.Crypto is set, it installs
// server-side credentials before binding any socket, failing fast per
// spec §4.2's "missing key file ... produce initialization errors that
// prevent the broker from binding".
func New(opts Options) (*Broker, error) {
	if opts.Crypto {
		auth, err := security.InstallServer(opts.KeyDir, opts.ServerKeyName, opts.ClientKeyNames,
			opts.Config.Agents.IPWhitelist, opts.Config.Agents.AuthVerbose)
		if err != nil {
			return nil, fmt.Errorf("broker: install credentials: %w", err)
		}
		b := &Broker{opts: opts, auth: auth}
		b.build()
		return b, nil
	}
	b := &Broker{opts: opts}
	b.build()
	return b, nil
}

func (b *Broker) build() {
	b.proxy = NewProxy(b.opts.Config.Agents.FrontendAddress, b.opts.Config.Agents.BackendAddress, b.opts.Debug, b.auth)
	b.settings = NewSettingsService(b.opts.Config.Agents.SettingsAddress, b.opts.Config, b.opts.InstallDir, b.opts.Debug, b.auth)
	b.control = NewControl(b.proxy, b.opts.Debug)
}

// Run starts the proxy and settings service and, in interactive mode, the
// terminal steering loop. It blocks until ctx is canceled or the control
// plane terminates the broker, returning whether a restart (re-exec) was
// requested.
func (b *Broker) Run(ctx context.Context) (restart bool, err error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		if e := b.proxy.Start(runCtx); e != nil {
			errCh <- e
		}
	}()
	go func() {
		if e := b.settings.Serve(runCtx); e != nil {
			errCh <- e
		}
	}()

	log.Printf("broker: bound front=%s back=%s settings=%s",
		b.opts.Config.Agents.FrontendAddress, b.opts.Config.Agents.BackendAddress, b.opts.Config.Agents.SettingsAddress)

	switch b.opts.Mode {
	case ModeInteractive:
		b.control.RunInteractive(runCtx, os.Stdin, b.opts.Reload)
		cancel()
	case ModeDocker, ModeDaemon:
		select {
		case <-ctx.Done():
		case e := <-errCh:
			return false, e
		}
	}

	return b.control.Restarting(), nil
}

// Stats returns the current proxy statistics snapshot.
func (b *Broker) Stats() [8]uint64 { return b.proxy.StatsSnapshot() }
