package config

import (
	"os"
	"testing"
	"time"
)

func TestConfigEnv(t *testing.T) {
	_ = os.Setenv("METACHAT_CLIENT_SETTLE_DELAY_MS", "300")
	defer func() { _ = os.Unsetenv("METACHAT_CLIENT_SETTLE_DELAY_MS") }()

	var out ClientConfig
	if err := LoadConfig(&out, ""); err != nil {
		t.Fatal(err)
	}

	if out.Client.SettleDelayMs != 300 {
		t.Errorf("%v is not 300", out.Client.SettleDelayMs)
	}
	if out.Client.SettleDelay() != 300*time.Millisecond {
		t.Errorf("%v is not 300ms", out.Client.SettleDelay())
	}
}

func TestConfigDefaults(t *testing.T) {
	var out ServerConfig
	if err := LoadConfig(&out, ""); err != nil {
		t.Fatal(err)
	}
	if out.Server.Address == "" {
		t.Errorf("no default server address")
	}
	if out.Meet.Store == "" {
		t.Errorf("no default meet store path")
	}
}
