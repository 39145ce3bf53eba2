// Package config loads and merges roadmap configuration.
//
// Effective configuration is built in four layers, later layers winning:
// compiled defaults, the JSON config file ($XDG_CONFIG_HOME/roadmap or the
// OS-appropriate equivalent), ROADMAP_* environment variables, and CLI flag
// overrides. [SetField] backs the `roadmap config set` subcommand.
package config
