// Command mads-broker is the central forwarding proxy and settings
// service for a MADS installation: it binds the publish-join,
// publish-fan-out, and settings sockets described in spec §6 and steers
// them from either a terminal or a signal-driven daemon loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pbosetti/mads-go/broker"
	"github.com/pbosetti/mads-go/internal/netutil"
	"github.com/pbosetti/mads-go/version"
)

func main() {
	var (
		configPath  = flag.String("c", "mads.toml", "path to the TOML configuration file")
		installDir  = flag.String("install-dir", ".", "installation directory attachments resolve against")
		debug       = flag.Bool("d", false, "enable debug logging")
		dockerMode  = flag.Bool("docker", false, "run as a plain daemon with no terminal steering loop")
		nic         = flag.String("nic", "", "print the IPv4 address of the named network interface and exit; \"list\" enumerates interfaces")
		crypto      = flag.Bool("crypto", false, "require CurveZMQ-style authenticated transport")
		keyDir      = flag.String("keys_dir", ".", "directory holding the broker's and clients' key files")
		keyBroker   = flag.String("key_broker", "broker", "base name of the broker's own key pair")
		keyClients  = flag.String("key_clients", "", "comma-separated base names of authorized client key pairs")
		showVersion = flag.Bool("v", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.LibVersion)
		return
	}

	if *nic != "" {
		runNIC(*nic)
		return
	}

	text, err := os.ReadFile(*configPath)
	if err != nil {
		log.Fatalf("mads-broker: read config: %v", err)
	}
	cfg, err := broker.LoadConfig(string(text))
	if err != nil {
		log.Fatalf("mads-broker: %v", err)
	}

	mode := broker.ModeInteractive
	if *dockerMode {
		mode = broker.ModeDocker
	}

	opts := broker.Options{
		Config:        cfg,
		InstallDir:    *installDir,
		Debug:         *debug,
		Mode:          mode,
		Crypto:        *crypto,
		KeyDir:        *keyDir,
		ServerKeyName: *keyBroker,
	}
	if *keyClients != "" {
		opts.ClientKeyNames = strings.Split(*keyClients, ",")
	}

	b, err := broker.New(opts)
	if err != nil {
		log.Fatalf("mads-broker: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	restart, err := b.Run(ctx)
	cancel()
	if err != nil {
		log.Fatalf("mads-broker: %v", err)
	}
	if restart {
		if err := broker.ReExec(); err != nil {
			log.Fatalf("mads-broker: restart: %v", err)
		}
	}
}

func runNIC(name string) {
	if name == "list" {
		names, err := netutil.ListInterfaces()
		if err != nil {
			log.Fatalf("mads-broker: %v", err)
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return
	}
	ip, err := netutil.InterfaceIP(name)
	if err != nil {
		log.Fatalf("mads-broker: %v", err)
	}
	fmt.Println(ip)
}
