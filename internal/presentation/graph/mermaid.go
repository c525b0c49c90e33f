package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/labflow/pkg/domain"
	"github.com/aretw0/labflow/pkg/registry"
)

// Overlay contains the current states of one entity to highlight on the diagram.
type Overlay struct {
	States domain.States
}

// GenerateMermaid produces a Mermaid state diagram of the workflows of one entity type.
// Each axis becomes a composite state. Styling:
//   - automatic transitions are dashed and suffixed with "(auto)"
//   - guarded transitions carry their permission in brackets
//
// With an overlay, the current state of each axis is highlighted.
func GenerateMermaid(wfs []registry.Workflow, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("stateDiagram-v2\n")

	for _, wf := range wfs {
		axis := sanitizeMermaidID(string(wf.Axis))
		fmt.Fprintf(&sb, "    state %q as %s {\n", string(wf.Axis), axis)

		for _, st := range wf.States() {
			fmt.Fprintf(&sb, "        %s : %s\n", stateID(wf.Axis, st), st)
		}
		if wf.Initial != "" {
			fmt.Fprintf(&sb, "        [*] --> %s\n", stateID(wf.Axis, wf.Initial))
		}
		for _, t := range wf.Transitions {
			label := string(t.ID)
			if !t.IsUserAction() {
				label += " (auto)"
			}
			if t.Permission != "" {
				label += fmt.Sprintf(" [%s]", t.Permission)
			}
			label = strings.ReplaceAll(label, ":", " ")
			for _, from := range t.From {
				fmt.Fprintf(&sb, "        %s --> %s : %s\n", stateID(wf.Axis, from), stateID(wf.Axis, t.To), label)
			}
		}
		sb.WriteString("    }\n")
	}

	if overlay != nil && len(overlay.States) > 0 {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for contrast on both themes
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000\n")
		for _, wf := range wfs {
			if st, ok := overlay.States[wf.Axis]; ok && st != "" {
				fmt.Fprintf(&sb, "    class %s current\n", stateID(wf.Axis, st))
			}
		}
	}

	return sb.String()
}

func stateID(axis domain.Axis, state domain.StateID) string {
	return sanitizeMermaidID(string(axis) + "_" + string(state))
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
