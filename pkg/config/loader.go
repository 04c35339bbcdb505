package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// cache keeps one parsed value per config struct type, so every component
// asking for the same Config sees the same snapshot of the environment.
var cache = struct {
	sync.RWMutex
	values map[string]any
}{values: make(map[string]any)}

var defaultEnvOnce sync.Once

// LoadEnv loads the given dotenv files into the process environment before
// any config structs are parsed. Without arguments it loads ./.env and
// ignores its absence; explicit paths must exist.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		_ = godotenv.Load()
		return nil
	}
	if err := godotenv.Load(paths...); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// MustLoadEnv is LoadEnv that panics on failure.
func MustLoadEnv(paths ...string) {
	if err := LoadEnv(paths...); err != nil {
		panic(fmt.Sprintf("failed to load env files: %v", err))
	}
}

// Load parses environment variables into v based on its env tags. The first
// call for a given struct type wins; later calls return the cached value, so
// the configuration stays consistent across the process lifetime.
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	defaultEnvOnce.Do(func() {
		// A missing .env file is fine; real deployments set the environment.
		_ = godotenv.Load()
	})

	key := typeKey[T]()

	cache.RLock()
	if cached, ok := cache.values[key]; ok {
		cache.RUnlock()
		*v = cached.(T)
		return nil
	}
	cache.RUnlock()

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}

	cache.Lock()
	defer cache.Unlock()
	if cached, ok := cache.values[key]; ok {
		// Another goroutine parsed first; keep its snapshot.
		*v = cached.(T)
		return nil
	}
	cache.values[key] = *v
	return nil
}

// MustLoad is Load that panics on failure. Use it for configuration the
// process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

// ResetCache drops all cached config values. Intended for tests that mutate
// the environment between loads.
func ResetCache() {
	cache.Lock()
	defer cache.Unlock()
	cache.values = make(map[string]any)
}

func typeKey[T any]() string {
	t := reflect.TypeFor[T]()
	return t.PkgPath() + "." + t.String()
}
