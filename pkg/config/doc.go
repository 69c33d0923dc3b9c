// Package config loads typed configuration structs from environment
// variables.
//
// It combines github.com/joho/godotenv for optional .env files with
// github.com/caarlos0/env/v11 for tag-driven struct parsing. The default
// .env file in the working directory is loaded at most once per process;
// explicit files can be loaded earlier with LoadEnv.
//
// Typical startup wiring:
//
//	var pgCfg pg.Config
//	var redisCfg redis.Config
//	var rlCfg ratelimiter.Config
//	config.MustLoad(&pgCfg)
//	config.MustLoad(&redisCfg)
//	config.MustLoad(&rlCfg)
package config
