package testutil

import (
	"os"

	"gopkg.in/yaml.v3"
)

// LoadYAML reads the named YAML fixture file and unmarshals it into out.
func LoadYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}
