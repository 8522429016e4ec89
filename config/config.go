// This file is part of meshbus, a peer-to-peer publish/subscribe broker.
//
// Adapted from gnunet-go's config/config.go: keeps the JSON-plus-
// ${VAR}-substitution loader and its reflect-driven field walk (extended
// with slice-of-struct and string-map branches), but replaces the GNUnet service catalogue (GNS/DHT/Namecache
// endpoints) with one node's configuration: identity, listen/peer
// endpoints, ACLs, auto-* toggles, reconnect interval, store backend
// specs, and the admin API address.

package config

import (
	"encoding/json"
	"io/ioutil"
	"regexp"
	"strings"
	"time"

	"reflect"

	"github.com/bfix/gospel/logger"
)

// EndpointConfig is one address this node listens on.
type EndpointConfig struct {
	Addr string `json:"addr"`
	Port uint16 `json:"port"`
	UPnP bool   `json:"upnp"`
}

// PeerConfig is a remote address this node dials on start-up.
type PeerConfig struct {
	Addr string `json:"addr"`
	Port uint16 `json:"port"`
}

// StoreConfig declares a store this node attaches at start-up, and the
// optional persistence sink a master mirrors its writes to (C12).
type StoreConfig struct {
	ID      string            `json:"id"`
	Role    string            `json:"role"` // "master" or "clone"
	Backend string            `json:"backend"`
	Params  map[string]string `json:"params"`
}

// AdminConfig is the bind address for the admin/introspection API (C13).
// A nil *AdminConfig disables it.
type AdminConfig struct {
	Addr string `json:"addr"`
	Port uint16 `json:"port"`
}

// Environ holds the ${VAR} substitution dictionary.
type Environ map[string]string

// NodeConfig is the aggregated configuration for a meshbus endpoint.
type NodeConfig struct {
	Env Environ `json:"environ"`

	Name         string `json:"name"`
	IdentitySeed string `json:"identitySeed"`

	Listen []EndpointConfig `json:"listen"`
	Peers  []PeerConfig     `json:"peers"`

	AutoPublish   bool     `json:"autoPublish"`
	AutoAdvertise bool     `json:"autoAdvertise"`
	PublishACL    []string `json:"publishACL"`
	AdvertACL     []string `json:"advertACL"`

	ReconnectInterval string `json:"reconnectInterval"`

	Stores []StoreConfig `json:"stores"`
	Admin  *AdminConfig  `json:"admin"`
}

// Reconnect parses ReconnectInterval, defaulting to 5s on an empty or
// malformed value.
func (c *NodeConfig) Reconnect() time.Duration {
	d, err := time.ParseDuration(c.ReconnectInterval)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// Cfg is the parsed node configuration, populated by ParseConfig.
var Cfg *NodeConfig

// ParseConfig reads and parses the JSON configuration file at fileName.
func ParseConfig(fileName string) (err error) {
	data, err := ioutil.ReadFile(fileName)
	if err != nil {
		return err
	}
	return ParseConfigBytes(data)
}

// ParseConfigBytes parses an already-read JSON configuration payload,
// applying ${VAR} substitutions from its own "environ" section.
func ParseConfigBytes(data []byte) (err error) {
	Cfg = new(NodeConfig)
	if err = json.Unmarshal(data, Cfg); err != nil {
		return err
	}
	applySubstitutions(Cfg, Cfg.Env)
	return nil
}

var rx = regexp.MustCompile(`\$\{([^\}]*)\}`)

// substString substitutes every "${NAME}" occurrence in s with env[NAME].
func substString(s string, env map[string]string) string {
	matches := rx.FindAllStringSubmatch(s, -1)
	for _, m := range matches {
		if len(m[1]) != 0 {
			subst, ok := env[m[1]]
			if !ok {
				continue
			}
			s = strings.Replace(s, "${"+m[1]+"}", subst, -1)
		}
	}
	return s
}

// applySubstitutions traverses the configuration data structure and
// applies string substitutions to all string-valued fields.
func applySubstitutions(x interface{}, env map[string]string) {
	var process func(v reflect.Value)
	process = func(v reflect.Value) {
		for i := 0; i < v.NumField(); i++ {
			fld := v.Field(i)
			if !fld.CanSet() {
				continue
			}
			switch fld.Kind() {
			case reflect.String:
				s := fld.Interface().(string)
				for {
					s1 := substString(s, env)
					if s1 == s {
						break
					}
					logger.Printf(logger.DBG, "[config] %s --> %s\n", s, s1)
					fld.SetString(s1)
					s = s1
				}

			case reflect.Slice:
				for j := 0; j < fld.Len(); j++ {
					e := fld.Index(j)
					if e.Kind() == reflect.Struct {
						process(e)
					}
				}

			case reflect.Map:
				if fld.Type().Elem().Kind() != reflect.String {
					continue
				}
				for _, k := range fld.MapKeys() {
					s := fld.MapIndex(k).String()
					for {
						s1 := substString(s, env)
						if s1 == s {
							break
						}
						s = s1
					}
					fld.SetMapIndex(k, reflect.ValueOf(s))
				}

			case reflect.Struct:
				process(fld)

			case reflect.Ptr:
				e := fld.Elem()
				if e.IsValid() {
					process(e)
				}
			}
		}
	}
	v := reflect.ValueOf(x)
	switch v.Kind() {
	case reflect.Ptr:
		e := v.Elem()
		if e.IsValid() {
			process(e)
		} else {
			logger.Printf(logger.ERROR, "[config] 'nil' pointer encountered")
		}
	case reflect.Struct:
		process(v)
	}
}
