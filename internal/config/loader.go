package config

import (
	"errors"
	"fmt"
	"os"

	"zapp/pkg/logging"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is looked up in the working directory when no explicit
// config file is given.
const DefaultConfigFile = "zapp.yaml"

// Load builds Settings from defaults, then the YAML file at path (a missing
// file is not an error), then the environment. A nil environ means the process
// environment. The result is validated; validation problems are returned as a
// ConfigurationErrorCollection.
func Load(path string, environ map[string]string) (Settings, error) {
	settings := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			logging.Debug("ConfigLoader", "No config file found at %s, using defaults", path)
		case err != nil:
			return Settings{}, fmt.Errorf("error reading config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &settings); err != nil {
				return Settings{}, ConfigurationError{
					Setting:   path,
					ErrorType: "parse",
					Message:   "config file is not valid YAML",
					Details:   err.Error(),
				}
			}
			logging.Info("ConfigLoader", "Loaded configuration from %s", path)
		}
	}

	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&settings, opts); err != nil {
		return Settings{}, ConfigurationError{
			Setting:   "environment",
			ErrorType: "parse",
			Message:   "environment variables could not be parsed",
			Details:   err.Error(),
		}
	}

	if errs := Validate(settings); errs.HasErrors() {
		return settings, errs
	}
	return settings, nil
}
