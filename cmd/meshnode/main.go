// Command meshnode runs a single mesh transport endpoint over a LoRa radio
// (spec.md §1). It is a thin CLI: every actual decision (compression,
// priority, duty-cycle admission, fragmentation, delivery, routing) lives in
// internal/meshnode; this file only wires flags into a meshnode.Config and
// pumps the node's tick loop.
package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"rubin.dev/mesh/internal/config"
	"rubin.dev/mesh/internal/dutycycle"
	"rubin.dev/mesh/internal/meshcrypto"
	"rubin.dev/mesh/internal/meshnode"
	"rubin.dev/mesh/internal/routing"
	"rubin.dev/mesh/internal/store"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("meshnode", flag.ContinueOnError)
	fs.SetOutput(stderr)

	selfID := fs.String("id", "node-1", "this node's identifier")
	region := fs.String("region", "EU", "regulatory region code (EU, US, JP, ...)")
	frequency := fs.Float64("frequency", 868.1, "transmit frequency in MHz")
	dataDir := fs.String("datadir", "", "bbolt data directory (empty disables persistence)")
	logLevel := fs.String("log-level", "info", "log level: debug|info|warn|error")
	algo := fs.String("algorithm", "ed25519", "signing algorithm: ed25519|secp256k1")
	dryRun := fs.Bool("dry-run", false, "print effective configuration and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if _, ok := dutycycle.Regions[strings.ToUpper(*region)]; !ok {
		fmt.Fprintf(stderr, "unknown region %q\n", *region)
		return 2
	}

	log := logrus.New()
	log.SetOutput(stderr)
	if level, err := logrus.ParseLevel(*logLevel); err == nil {
		log.SetLevel(level)
	}

	crypto := meshcrypto.DefaultProvider{}
	alg := meshcrypto.AlgorithmEd25519
	if strings.EqualFold(*algo, "secp256k1") {
		alg = meshcrypto.AlgorithmSecp256k1
	}
	kp, err := crypto.GenerateKeyPair(alg)
	if err != nil {
		fmt.Fprintf(stderr, "key generation failed: %v\n", err)
		return 2
	}

	var kv store.KV
	if *dataDir != "" {
		bolt, err := store.Open(*dataDir)
		if err != nil {
			fmt.Fprintf(stderr, "store open failed: %v\n", err)
			return 2
		}
		defer bolt.Close()
		kv = bolt
	}

	transportCfg := config.DefaultConfig(dutycycle.Regions[strings.ToUpper(*region)])
	if err := transportCfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "invalid transport config: %v\n", err)
		return 2
	}

	radio := newLineRadio(stdout)

	node, err := meshnode.NewNode(meshnode.Config{
		SelfID:           *selfID,
		Crypto:           crypto,
		KeyPair:          kp,
		Transport:        transportCfg,
		LoRaParams:       dutycycle.DefaultLoRaParams,
		Frequency:        *frequency,
		Radio:            radio,
		Store:            kv,
		Logger:           log,
		NodeType:         routing.NodeTypeFull,
		BlockchainHeight: 0,
		UTXOCompleteness: 1.0,
		Services:         []string{"mesh-transport"},
	})
	if err != nil {
		fmt.Fprintf(stderr, "node init failed: %v\n", err)
		return 2
	}

	fmt.Fprintf(stdout, "meshnode: id=%s region=%s frequency=%.1fMHz pubkey=%s\n",
		*selfID, strings.ToUpper(*region), *frequency, hex.EncodeToString(kp.PublicKey))
	if *dryRun {
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	fmt.Fprintln(stdout, "meshnode running, press Ctrl+C to stop")
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(stdout, "meshnode stopped")
			return 0
		case now := <-ticker.C:
			node.Pump(now)
		}
	}
}

// lineRadio is a demonstration Radio that writes every outbound frame as a
// hex-encoded line, standing in for an actual LoRa driver (spec.md §1 treats
// the physical radio as an external collaborator this package never owns).
type lineRadio struct {
	w *bufio.Writer
}

func newLineRadio(w io.Writer) *lineRadio {
	return &lineRadio{w: bufio.NewWriter(w)}
}

func (r *lineRadio) Transmit(frame []byte) error {
	if _, err := fmt.Fprintf(r.w, "tx %s\n", hex.EncodeToString(frame)); err != nil {
		return err
	}
	return r.w.Flush()
}
