// Command mads-keygen generates a Curve25519 credential pair for use by
// mads-broker or mads-agent's --crypto transport (spec §4.2.1, §6).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/pbosetti/mads-go/security"
	"github.com/pbosetti/mads-go/version"
)

func main() {
	var (
		dir       = flag.String("dir", ".", "directory to write the key pair into")
		name      = flag.String("name", "", "base name for the key pair (required, e.g. \"broker\" or an agent name)")
		overwrite = flag.Bool("f", false, "overwrite an existing key pair")
		showVer   = flag.Bool("v", false, "print version and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Println(version.LibVersion)
		return
	}
	if *name == "" {
		fmt.Fprintln(os.Stderr, "mads-keygen: -name is required")
		flag.Usage()
		os.Exit(2)
	}

	kp, err := security.GenerateKeyPair()
	if err != nil {
		log.Fatalf("mads-keygen: %v", err)
	}
	if err := security.Persist(*dir, *name, kp, *overwrite); err != nil {
		log.Fatalf("mads-keygen: %v", err)
	}
	fmt.Printf("wrote %s/%s.pub and %s/%s.key\n", *dir, *name, *dir, *name)
	fmt.Printf("public key: %s\n", kp.Public)
}
