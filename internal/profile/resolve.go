package profile

import "github.com/anhdn/convo/internal/config"

// Resolve picks the profile name: the explicit flag wins, then the config
// default, then "main".
func Resolve(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if cfg, err := config.Load(ConfigPath()); err == nil && cfg.DefaultProfile != "" {
		return cfg.DefaultProfile
	}
	return "main"
}
