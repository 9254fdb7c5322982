// Package config loads Larder service configuration.
//
// Configuration is resolved in three layers: built-in defaults, an optional
// YAML file (LARDER_CONFIG_FILE), and LARDER_* environment variables, with
// later layers winning. LoadConfig validates the merged result before
// returning it.
package config
