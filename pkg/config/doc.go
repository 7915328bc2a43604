// Package config loads typed configuration structs from environment
// variables using caarlos0/env struct tags, with optional .env file
// support via godotenv. Each config type is parsed once per process
// and cached for subsequent loads.
package config
