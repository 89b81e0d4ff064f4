package config

import "github.com/caarlos0/env/v11"

// parseEnv overlays CRYPTOVOTE_* variables. Unset variables keep the value
// from the previous layer. Malformed values panic like the other loaders.
func parseEnv(config *Config) {
	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		panic(err)
	}
}
