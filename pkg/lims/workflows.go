package lims

import (
	_ "embed"
	"fmt"

	"github.com/aretw0/labflow/pkg/registry"
)

//go:embed workflows.yaml
var workflowsYAML []byte

// Workflows returns the workflow definitions of every laboratory entity type.
func Workflows() ([]registry.Workflow, error) {
	wfs, err := registry.Parse(workflowsYAML)
	if err != nil {
		return nil, fmt.Errorf("lims: %w", err)
	}
	return wfs, nil
}

// NewRegistry returns a registry holding the laboratory workflows.
func NewRegistry() (*registry.Registry, error) {
	wfs, err := Workflows()
	if err != nil {
		return nil, err
	}
	reg := registry.New()
	for _, wf := range wfs {
		if err := reg.Register(wf); err != nil {
			return nil, fmt.Errorf("lims: %w", err)
		}
	}
	return reg, nil
}
