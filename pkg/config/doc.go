// Package config loads and validates the opwatch YAML configuration.
//
// Configuration comes from a single YAML file with sections for the control
// plane endpoint, the polling engine, telemetry, the history store, and the
// submission policy engine. Missing fields keep their defaults; structural
// validation uses go-playground/validator tags plus a few semantic checks.
//
//	cfg, err := config.Load("opwatch.yaml")
//
// Watcher provides hot reload: it watches the file with fsnotify, debounces
// rapid successive writes, and calls back with each successfully reloaded
// configuration. Invalid edits are logged and ignored.
package config
