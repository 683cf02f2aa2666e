// Package config loads the gateway configuration from YAML with
// ${ENV_VAR} expansion and duration parsing.
package config
