// Package config loads typed configuration structs.
//
// Load parses the environment (after an optional ./.env) with
// github.com/caarlos0/env/v11 and caches the result per type, so every
// package asking for the same struct sees the same values. LoadEnv reads
// additional .env files through github.com/joho/godotenv. LoadYAML overlays a
// YAML document decoded with gopkg.in/yaml.v3, which is how the larger tenant
// tables (domain mapping, subdomain patterns) are usually provided:
//
//	var cfg tenant.Config
//	config.MustLoad(&cfg)
//	if path := os.Getenv("TENANT_CONFIG_FILE"); path != "" {
//		if err := config.LoadYAML(path, &cfg); err != nil {
//			return err
//		}
//	}
//
// Errors can be matched with errors.Is against ErrParsingConfig,
// ErrNilPointer, ErrLoadingEnvFile and ErrReadingFile.
package config
