package config

import "errors"

var (
	// ErrInvalidConfig is returned when a configuration value cannot be used.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrExists is returned when WriteDefault would overwrite a file.
	ErrExists = errors.New("config file already exists")
)
