package main

import (
	"testing"
	"time"

	"github.com/meridian-chain/meridian-node/internal/config"
)

// TestRunNodeInitializationAndGracefulStop mirrors the teacher's
// TestRunNode_InitializationAndGracefulStop: build a node from defaults,
// let its background loops run briefly, then stop everything and confirm
// no initialization step returned an error.
func TestRunNodeInitializationAndGracefulStop(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Network.ListenAddr = "127.0.0.1:0"

	n, err := runNode(cfg)
	if err != nil {
		t.Fatalf("runNode() returned an error during initialization: %v", err)
	}
	if n == nil {
		t.Fatal("runNode() returned a nil node without an error")
	}

	if err := n.validation.Start(); err != nil {
		t.Fatalf("validation.Start(): %v", err)
	}
	go n.runAcceptLoop()
	go n.runDiscoveryLoop(cfg.Network)

	time.Sleep(50 * time.Millisecond)

	n.shutdown()
}
