// Package config loads the reflex configuration file.
//
// The configuration lives in reflex.json, reflex.toml or reflex.yaml at the
// application root; the format follows the extension. Durations are written
// as Go duration strings.
//
// # Configuration File Structure
//
//	{
//	  "server": {
//	    "address": ":8080",
//	    "cablePath": "/cable",
//	    "heartbeatInterval": "30s",
//	    "rateLimit": 10,
//	    "rateBurst": 20
//	  },
//	  "reflex": {
//	    "permanentAttribute": "data-reflex-permanent"
//	  },
//	  "session": {
//	    "store": "redis",
//	    "addr": "localhost:6379",
//	    "ttl": "24h"
//	  },
//	  "broadcast": {
//	    "driver": "redis"
//	  },
//	  "metrics": {
//	    "enabled": true
//	  }
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config
