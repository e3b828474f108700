// Package config loads streamwatch configuration from YAML.
//
// Values may reference environment variables as ${VAR}. Loading applies
// defaults for every optional field before validation, so a minimal file
// only needs twitch.client_id and a token.
package config
