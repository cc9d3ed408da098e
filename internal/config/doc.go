// Package config loads and validates the corkboard YAML configuration.
//
// ${VAR_NAME} references are expanded from the environment before
// parsing so secrets stay out of the file itself. Validation runs at
// load time; a config that passes Load is complete enough to start the
// server.
package config
