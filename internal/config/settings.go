package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"station-dashboard/internal/modules/stations/types"
)

//go:embed settings.yaml
var embeddedSettings []byte

// Settings is the dashboard policy file: which institution's stations to
// show, the default year filter (0 disables it) and the variable charted by
// default.
type Settings struct {
	Institution     string `yaml:"institution"`
	DefaultYear     int    `yaml:"default_year"`
	DefaultVariable string `yaml:"default_variable"`
}

// LoadSettings parses the embedded settings, or the file at path when path is
// non-empty.
func LoadSettings(path string) (Settings, error) {
	data := embeddedSettings
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("read settings file %q: %w", path, err)
		}
		data = b
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	if s.Institution == "" {
		return Settings{}, fmt.Errorf("settings: institution must not be empty")
	}
	if s.DefaultVariable == "" {
		s.DefaultVariable = types.VarTemperature
	}
	if !knownVariable(s.DefaultVariable) {
		return Settings{}, fmt.Errorf("settings: unknown default_variable %q", s.DefaultVariable)
	}
	if s.DefaultYear < 0 {
		return Settings{}, fmt.Errorf("settings: default_year must be >= 0, got %d", s.DefaultYear)
	}
	return s, nil
}

func knownVariable(name string) bool {
	for _, v := range types.Variables() {
		if v == name {
			return true
		}
	}
	return false
}
