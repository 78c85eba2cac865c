package config

import "os"

// Environment overrides, applied after the file and before validation.
// Only operational knobs are overridable; credentials always stay
// env-name driven through the registry section.
var envOverrides = map[string]func(*Config, string){
	"SHAKEDOWN_IMAGE":           func(c *Config, v string) { c.Image = v },
	"SHAKEDOWN_CONTAINER_NAME":  func(c *Config, v string) { c.Container.Name = v },
	"SHAKEDOWN_REGISTRY_SERVER": func(c *Config, v string) { c.Registry.Server = v },
	"SHAKEDOWN_TRIGGER_BRANCH":  func(c *Config, v string) { c.Trigger.Branch = v },
	"SHAKEDOWN_HISTORY_PATH":    func(c *Config, v string) { c.History.Path = v },
}

// applyEnvOverrides modifies config in place. Unset and empty variables
// leave the file values alone.
func applyEnvOverrides(cfg *Config) {
	for name, apply := range envOverrides {
		if v := os.Getenv(name); v != "" {
			apply(cfg, v)
		}
	}
}
