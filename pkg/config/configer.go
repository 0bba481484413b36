package config

import "time"

type Configer interface {
	GetKey(key string) string
	GetKeyWithDefault(key, defaultValue string) string
	GetIntKeyWithDefault(key string, defaultValue int) int
	GetBoolKeyWithDefault(key string, defaultValue bool) bool
	GetDurationKeyWithDefault(key string, defaultValue time.Duration) time.Duration
}
