// Package config loads relay settings from environment variables (with optional
// .env file support) and validates them at startup.
package config
