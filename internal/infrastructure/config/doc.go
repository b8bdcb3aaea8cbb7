// Package config loads and validates fleetstate configuration.
//
// Configuration comes from a YAML file with environment variable overrides
// for deployment-specific values (paths, ports, credentials). See Load for
// the precedence rules.
package config
