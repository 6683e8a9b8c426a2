// Package config loads the parley client configuration from YAML with
// ${ENV_VAR} expansion and duration-string parsing.
package config
