// Package config loads typed configuration structs from environment
// variables, with optional dotenv support for local development.
//
// Every infrastructure package declares its own Config struct with env tags;
// the binary loads each one once at startup:
//
//	var pgCfg pg.Config
//	config.MustLoad(&pgCfg)
//
// Parsed values are cached per struct type, so repeated loads of the same
// type observe one consistent snapshot of the environment.
package config
