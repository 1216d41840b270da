package config

import (
	"path/filepath"
	"testing"

	"github.com/opensyria/pownode/keys"
)

func TestDataDirAndLogFilesAreUnderHomeDir(t *testing.T) {
	cfg := &Config{HomeDir: "/home/node"}
	if want := filepath.Join("/home/node", "data"); cfg.DataDir() != want {
		t.Fatalf("DataDir() = %q, want %q", cfg.DataDir(), want)
	}
	if want := filepath.Join("/home/node", "logs", "pownoded.log"); cfg.LogFile() != want {
		t.Fatalf("LogFile() = %q, want %q", cfg.LogFile(), want)
	}
	if want := filepath.Join("/home/node", "logs", "pownoded_err.log"); cfg.ErrLogFile() != want {
		t.Fatalf("ErrLogFile() = %q, want %q", cfg.ErrLogFile(), want)
	}
}

func TestMiningKeyAddressDisabledWhenEmpty(t *testing.T) {
	cfg := &Config{}
	_, ok, err := cfg.MiningKeyAddress()
	if err != nil {
		t.Fatalf("MiningKeyAddress: %v", err)
	}
	if ok {
		t.Fatalf("MiningKeyAddress() ok = true with no MiningAddress set")
	}
}

func TestMiningKeyAddressParsesSetValue(t *testing.T) {
	kp, err := keys.Generate()
	if err != nil {
		t.Fatalf("keys.Generate: %v", err)
	}
	cfg := &Config{MiningAddress: kp.Address().String()}
	addr, ok, err := cfg.MiningKeyAddress()
	if err != nil {
		t.Fatalf("MiningKeyAddress: %v", err)
	}
	if !ok {
		t.Fatalf("MiningKeyAddress() ok = false with MiningAddress set")
	}
	if addr != kp.Address() {
		t.Fatalf("MiningKeyAddress() = %x, want %x", addr, kp.Address())
	}
}

func TestMiningKeyAddressRejectsGarbage(t *testing.T) {
	cfg := &Config{MiningAddress: "not-a-valid-address"}
	if _, _, err := cfg.MiningKeyAddress(); err == nil {
		t.Fatalf("MiningKeyAddress with garbage input succeeded, want error")
	}
}
