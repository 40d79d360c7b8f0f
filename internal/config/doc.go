// Package config holds the seocrawl settings: defaults, the .seocrawl.yaml
// file format, per-site overrides and validation.
package config
