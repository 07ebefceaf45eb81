// Package config loads spe configuration from YAML with environment overrides.
//
// Every SPE_* variable overrides the matching file value; see applyEnvOverrides
// for the full list.
package config
