// Package config loads the bedrock configuration from YAML files.
//
// Files given with --config are applied in order over [Default]. Keys that
// bedrock does not know are kept in Config.Extra for application modules,
// which read them with [Config.Section]:
//
//	# app.yaml
//	core:
//	  workers: 2
//	  restart: true
//	mongodb:
//	  host: db.internal
//
//	var db struct{ Host string `yaml:"host"` }
//	err := cfg.Section("mongodb", &db)
//
// # Required overrides
//
// Some values have no safe default and must be set by a bedrock.configure
// listener. Listing them in core.ensureConfigOverride.fields makes start-up
// fail with an [OverrideError] when a listed value is still unchanged after
// configure:
//
//	snap, _ := cfg.Snapshot(cfg.Core.EnsureConfigOverride.Fields)
//	// ... emit bedrock.configure ...
//	if err := snap.Verify(cfg); err != nil {
//		return err
//	}
package config
