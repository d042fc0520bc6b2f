// Package config provides the process-wide default settings blob applied to
// identities that have no stored configuration yet.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/marwld/minibot/internal/model"
)

// BuiltinDefaults returns the compiled-in default settings.
func BuiltinDefaults() model.Settings {
	return model.Settings{
		model.KeyAutoViewStatus: "true",
		model.KeyAutoLikeStatus: "true",
		model.KeyAutoReact:      "off",
		model.KeyAutoLikeEmoji:  "🫠,🥶,🔮,❤️",
		model.KeyPrefix:         ".",
	}
}

// LoadDefaults overlays a YAML settings file onto the builtin defaults and
// returns the result plus the path actually used (empty when no file loaded).
// A missing or unreadable file is not an error; the builtins always apply.
func LoadDefaults(path string) (model.Settings, string) {
	defaults := BuiltinDefaults()

	candidates := make([]string, 0, 2)
	if path != "" {
		candidates = append(candidates, path)
	} else {
		candidates = append(candidates, "configs/settings.yaml", "settings.yaml")
	}

	for _, p := range candidates {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var overlay map[string]string
		if err := yaml.Unmarshal(data, &overlay); err != nil {
			continue
		}
		for k, v := range overlay {
			defaults[k] = v
		}
		return defaults, p
	}
	return defaults, ""
}
