// Package config loads allocator settings the way this codebase's process
// main packages already load their own configuration: environment
// variables with defaults (the getenv idiom in cmd/coordinator/main.go and
// cmd/node/main.go), generalized here to also accept an optional YAML
// overlay file for the dotted settings keys the allocator reads (§6).
package config

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/cleberar38/shardalloc/internal/allocator"
)

// EnvPrefix is prepended (with dots replaced by underscores and upper-cased)
// to every settings key when checking the environment, e.g.
// gateway.list_timeout becomes ALLOCATOR_GATEWAY_LIST_TIMEOUT.
const EnvPrefix = "ALLOCATOR_"

// DefaultConfigPath is used when ALLOCATOR_CONFIG is unset.
const DefaultConfigPath = "./allocator.yaml"

// Load builds allocator.Settings from an optional YAML file followed by an
// environment overlay. A missing file is not an error: every recognized
// key has a spec-mandated default, applied by allocator.Settings's own
// accessor methods when a key is absent here.
func Load() (allocator.Settings, error) {
	path := Getenv("ALLOCATOR_CONFIG", DefaultConfigPath)

	settings := allocator.Settings{}

	if data, err := os.ReadFile(path); err == nil {
		var fromFile map[string]string
		if err := yaml.Unmarshal(data, &fromFile); err != nil {
			return nil, errors.Wrapf(err, "config: parsing %s", path)
		}
		for k, v := range fromFile {
			settings[k] = v
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "config: reading %s", path)
	}

	for _, key := range recognizedKeys {
		envKey := EnvPrefix + strings.ToUpper(strings.NewReplacer(".", "_").Replace(key))
		if v, ok := os.LookupEnv(envKey); ok {
			settings[key] = v
		}
	}

	return settings, nil
}

var recognizedKeys = []string{
	"gateway.list_timeout",
	"gateway.local.list_timeout",
	"gateway.initial_shards",
	"gateway.local.initial_shards",
	"index.recovery.initial_shards",
	"index.shared_filesystem",
	"index.shared_filesystem.recover_on_any_node",
}

// Getenv returns the environment variable named by key, or def if it is
// unset or empty, matching the getenv helper already used by this
// codebase's cmd/coordinator and cmd/node main packages.
func Getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
