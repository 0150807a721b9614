// Package config loads relay settings from environment variables and
// validates the two positional bind addresses.
package config
