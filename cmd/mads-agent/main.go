// Command mads-agent is the generic plug-in host executable: it bootstraps
// an Agent from the settings service or a local file, loads a native
// producer, transformer, or consumer artifact, and drives it through
// Host.Run* for the lifetime of the process (spec §4.5, §4.6, §6).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pbosetti/mads-go/agent"
	"github.com/pbosetti/mads-go/internal/netutil"
	"github.com/pbosetti/mads-go/pluginhost"
	"github.com/pbosetti/mads-go/version"
)

type overrideList []string

func (o *overrideList) String() string { return fmt.Sprint([]string(*o)) }
func (o *overrideList) Set(v string) error {
	*o = append(*o, v)
	return nil
}

func main() {
	var (
		settingsURI = flag.String("s", "", "settings URI (tcp://host:port) or, with a local path, a TOML file")
		name        = flag.String("n", "", "agent name (defaults to the binary name with its \"mads-\" prefix stripped)")
		agentID     = flag.String("i", "", "agent instance identifier, exposed to the plug-in as agent_id")
		crypto      = flag.Bool("crypto", false, "enable CurveZMQ-style authenticated transport")
		keyDir      = flag.String("keys_dir", ".", "directory holding this agent's and the broker's key files")
		keyClient   = flag.String("key_client", "", "base name of this agent's own key pair")
		keyBroker   = flag.String("key_broker", "broker", "base name of the broker's public key")
		pluginPath  = flag.String("plugin", "", "path to the native plug-in artifact")
		periodMS    = flag.Int("p", 0, "loop period in milliseconds, overriding the configured time_step")
		delayMS     = flag.Int("d", 0, "delay after connecting before the first publish, in milliseconds")
		dontBlock   = flag.Bool("b", false, "non-blocking receive (transformer/consumer roles)")
		showVersion = flag.Bool("v", false, "print version and exit")
	)
	var overrides overrideList
	flag.Var(&overrides, "o", "plug-in parameter override key=value (repeatable)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.LibVersion)
		return
	}

	agentName := *name
	if agentName == "" {
		agentName = agent.NameFromBinary("mads-")
	}

	a := agent.New(agentName, *settingsURI)
	a.Descriptor.AgentID = *agentID

	initOpts := agent.InitOptions{
		Crypto:        *crypto,
		KeyDir:        *keyDir,
		ClientKeyName: *keyClient,
		ServerKeyName: *keyBroker,
	}
	if *settingsURI != "" {
		if info, err := os.Stat(*settingsURI); err == nil && !info.IsDir() {
			initOpts.SettingsPath = *settingsURI
		}
	}
	if err := a.Init(initOpts); err != nil {
		log.Fatalf("mads-agent %s: %v", agentName, err)
	}

	if err := a.Connect(time.Duration(*delayMS) * time.Millisecond); err != nil {
		log.Fatalf("mads-agent %s: %v", agentName, err)
	}
	defer a.Disconnect()

	a.RegisterEvent(agent.EventStartup, nil)
	defer a.RegisterEvent(agent.EventShutdown, nil)

	if *periodMS > 0 {
		a.Descriptor.TimeStepMS = float64(*periodMS)
	}

	installPrefix, err := netutil.InstallPrefix()
	if err != nil {
		installPrefix, err = os.Getwd()
		if err != nil {
			log.Fatalf("mads-agent %s: %v", agentName, err)
		}
	}
	artifact, err := pluginhost.ResolveArtifactPath(*pluginPath, a.Descriptor.AttachmentPath, agentName+".so", installPrefix)
	if err != nil {
		log.Fatalf("mads-agent %s: %v", agentName, err)
	}

	params := pluginhost.NewParams(nil, installPrefix, a.Descriptor.AgentID)
	params["dont_block"] = *dontBlock
	for _, raw := range overrides {
		if err := params.ApplyOverride(raw); err != nil {
			log.Fatalf("mads-agent %s: %v", agentName, err)
		}
	}
	host := pluginhost.NewHost(a, params)

	if err := runArtifact(host, artifact); err != nil {
		log.Fatalf("mads-agent %s: %v", agentName, err)
	}
}

// runArtifact tries each role's factory symbol in turn, since an artifact
// declares exactly one (spec §4.6).
func runArtifact(host *pluginhost.Host, artifact string) error {
	if p, err := pluginhost.LoadProducer(artifact); err == nil {
		return host.RunProducer(p)
	}
	if t, err := pluginhost.LoadTransformer(artifact); err == nil {
		return host.RunTransformer(t)
	}
	if c, err := pluginhost.LoadConsumer(artifact); err == nil {
		return host.RunConsumer(c)
	}
	return fmt.Errorf("mads-agent: %s exports none of NewProducer/NewTransformer/NewConsumer", artifact)
}
