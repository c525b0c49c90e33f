package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Definitions is the document layout of a workflow definitions file.
type Definitions struct {
	Workflows []Workflow `yaml:"workflows"`
}

// Parse decodes workflow definitions from YAML.
func Parse(data []byte) ([]Workflow, error) {
	var defs Definitions
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse workflow definitions: %w", err)
	}
	return defs.Workflows, nil
}

// LoadFile reads and decodes a YAML definitions file.
func LoadFile(path string) ([]Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow definitions: %w", err)
	}
	return Parse(data)
}

// Load parses data and registers every workflow it declares.
func (r *Registry) Load(data []byte) error {
	wfs, err := Parse(data)
	if err != nil {
		return err
	}
	for _, wf := range wfs {
		if err := r.Register(wf); err != nil {
			return err
		}
	}
	return nil
}

// Marshal encodes the definitions of the given workflows as YAML.
func Marshal(wfs []Workflow) ([]byte, error) {
	return yaml.Marshal(Definitions{Workflows: wfs})
}
