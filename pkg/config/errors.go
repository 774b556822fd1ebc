package config

import "errors"

var (
	// ErrParsingConfig is returned when the environment or a YAML document cannot be decoded into the struct.
	ErrParsingConfig = errors.New("failed to parse config")

	// ErrNilPointer is returned when a nil pointer is passed to a loader.
	ErrNilPointer = errors.New("nil pointer provided to config loader")

	// ErrLoadingEnvFile is returned when a .env file cannot be read.
	ErrLoadingEnvFile = errors.New("failed to load env file")

	// ErrReadingFile is returned when a YAML config file cannot be read.
	ErrReadingFile = errors.New("failed to read config file")
)
