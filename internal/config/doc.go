// Package config loads the homedash configuration.
//
// Values come from, in increasing precedence: built-in defaults, the YAML
// file ($XDG_CONFIG_HOME/homedash/config.yaml unless --config names another),
// and environment variables. A .env file in the working directory is loaded
// into the environment first; variables already set win over it.
package config
