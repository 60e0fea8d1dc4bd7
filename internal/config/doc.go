// Package config loads and validates the zapp run settings.
//
// Settings come from three layers, later layers winning:
//
//  1. Default() values
//  2. an optional YAML file (zapp.yaml in the working directory by default)
//  3. environment variables (RUN_TYPE, TEST_STAND, PROJECT, ENV, SMARTWAIT_DELAY, ...)
//
// The environment is the primary surface; CI jobs configure runs exclusively
// through it. Validation collects every problem into a
// ConfigurationErrorCollection so a misconfigured run fails once, before any
// scenario starts, with the complete list of fixes.
package config
