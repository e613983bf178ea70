// Package registry holds the static module registry: the platform's known
// functional modules and their field descriptors, loaded from YAML at
// startup. The authorization engine treats this as injected configuration;
// it never reads or mutates it at resolution time.
package registry
