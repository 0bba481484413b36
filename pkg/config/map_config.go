package config

import (
	"sync"
	"time"
)

// MapConfig serves keys from an in-memory map. It is mostly used in tests.
type MapConfig struct {
	configValues sync.Map
}

func NewMapConfig(entries map[string]string) *MapConfig {
	c := &MapConfig{}

	for key, entry := range entries {
		c.configValues.Store(key, entry)
	}

	return c
}

func (c *MapConfig) GetKey(key string) string {
	v, ok := c.configValues.Load(key)
	switch {
	case !ok:
		return ""

	case v == nil:
		return ""

	default:
		return v.(string)
	}
}

func (c *MapConfig) GetKeyWithDefault(key, defaultValue string) string {
	val := c.GetKey(key)
	if val == "" {
		return defaultValue
	}

	return val
}

func (c *MapConfig) GetIntKeyWithDefault(key string, defaultValue int) int {
	return intOrDefault(c.GetKey(key), defaultValue)
}

func (c *MapConfig) GetBoolKeyWithDefault(key string, defaultValue bool) bool {
	return boolOrDefault(c.GetKey(key), defaultValue)
}

func (c *MapConfig) GetDurationKeyWithDefault(key string, defaultValue time.Duration) time.Duration {
	return durationOrDefault(c.GetKey(key), defaultValue)
}
