package config

import (
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ViperConfig reads keys through a viper instance. Values set on the instance,
// such as command line flags, take precedence over the environment, which viper
// reads automatically. Typed keys go through viper's own conversions; a value
// that doesn't convert falls back to the default.
type ViperConfig struct {
	v *viper.Viper
}

func NewViperConfig(v *viper.Viper) *ViperConfig {
	if v == nil {
		v = viper.New()
	}

	v.AutomaticEnv()

	return &ViperConfig{v: v}
}

func (c *ViperConfig) GetKey(key string) string {
	return c.v.GetString(key)
}

func (c *ViperConfig) GetKeyWithDefault(key, defaultValue string) string {
	val := c.GetKey(key)
	if val == "" {
		return defaultValue
	}

	return val
}

func (c *ViperConfig) GetIntKeyWithDefault(key string, defaultValue int) int {
	if !c.isSet(key) {
		return defaultValue
	}

	val, err := cast.ToIntE(strings.TrimSpace(c.GetKey(key)))
	if err != nil {
		return defaultValue
	}

	return val
}

func (c *ViperConfig) GetBoolKeyWithDefault(key string, defaultValue bool) bool {
	if !c.isSet(key) {
		return defaultValue
	}

	val, err := cast.ToBoolE(strings.TrimSpace(c.GetKey(key)))
	if err != nil {
		return defaultValue
	}

	return val
}

// GetDurationKeyWithDefault accepts Go durations ("90s") and, like the other
// configers, bare numbers as seconds.
func (c *ViperConfig) GetDurationKeyWithDefault(key string, defaultValue time.Duration) time.Duration {
	if !c.isSet(key) {
		return defaultValue
	}

	val := strings.TrimSpace(c.GetKey(key))
	if secs, err := cast.ToIntE(val); err == nil {
		return time.Duration(secs) * time.Second
	}

	d, err := cast.ToDurationE(val)
	if err != nil {
		return defaultValue
	}

	return d
}

func (c *ViperConfig) isSet(key string) bool {
	return c.v.IsSet(key) && strings.TrimSpace(c.GetKey(key)) != ""
}
