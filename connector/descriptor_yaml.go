package connector

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// descriptorYAML mirrors Descriptor's shape for YAML decoding; the
// Python original's connector registry declares default parameters in a
// YAML config block, and this keeps that same human-editable format
// rather than requiring Go source changes to add a connector's defaults.
type descriptorYAML struct {
	Type           string                 `yaml:"type"`
	Defaults       map[string]interface{} `yaml:"defaults"`
	RequiredParams []string               `yaml:"required_params"`
	OptionalParams []string               `yaml:"optional_params"`
	Description    string                 `yaml:"description"`
}

// LoadDescriptorsYAML parses a YAML document of the form:
//
//	- type: postgres
//	  description: PostgreSQL source/destination
//	  required_params: [host, port, database]
//	  optional_params: [schema]
//	  defaults:
//	    port: 5432
//
// into Descriptors, for registering connector default parameters without
// hand-writing Go literals per connector.
func LoadDescriptorsYAML(data []byte) ([]Descriptor, error) {
	var raw []descriptorYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing connector descriptor yaml: %w", err)
	}

	descriptors := make([]Descriptor, 0, len(raw))
	for _, d := range raw {
		if d.Type == "" {
			return nil, fmt.Errorf("connector descriptor missing required field \"type\"")
		}
		descriptors = append(descriptors, Descriptor{
			Type:           d.Type,
			Defaults:       d.Defaults,
			RequiredParams: d.RequiredParams,
			OptionalParams: d.OptionalParams,
			Description:    d.Description,
		})
	}
	return descriptors, nil
}
