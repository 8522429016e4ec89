// This file is part of meshbus, a peer-to-peer publish/subscribe broker.

package config

import (
	"encoding/json"
	"io/ioutil"
	"testing"

	"github.com/bfix/gospel/logger"
)

func TestConfigRead(t *testing.T) {
	logger.SetLogLevel(logger.WARN)

	data, err := ioutil.ReadFile("./meshbus-config.json")
	if err != nil {
		t.Fatal(err)
	}
	if err := ParseConfigBytes(data); err != nil {
		t.Fatal(err)
	}
	if Cfg.Name != "mercury" {
		t.Fatalf("expected name 'mercury', got %q", Cfg.Name)
	}
	if len(Cfg.Stores) != 1 || Cfg.Stores[0].Params["path"] != "/var/lib/meshbus/kv" {
		t.Fatalf("expected ${HOME_DIR} substitution in store path, got %q", Cfg.Stores[0].Params["path"])
	}
	if _, err = json.Marshal(Cfg); err != nil {
		t.Fatal(err)
	}
}

func TestReconnectDefault(t *testing.T) {
	c := &NodeConfig{}
	if d := c.Reconnect(); d.Seconds() != 5 {
		t.Fatalf("expected default 5s, got %s", d)
	}
}
