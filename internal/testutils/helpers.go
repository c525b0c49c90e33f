package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/labflow/pkg/domain"
	"github.com/stretchr/testify/require"
)

// Node is a generic entity for engine tests.
type Node struct {
	ID       string
	Kind     domain.EntityType
	Up       domain.Entity
	Relation map[domain.Relation][]domain.Entity
}

// NewNode creates a node without parent or children.
func NewNode(uid string, et domain.EntityType) *Node {
	return &Node{ID: uid, Kind: et, Relation: make(map[domain.Relation][]domain.Entity)}
}

func (n *Node) UID() string             { return n.ID }
func (n *Node) Type() domain.EntityType { return n.Kind }

func (n *Node) Parent() domain.Entity {
	if n.Up == nil {
		return nil
	}
	return n.Up
}

func (n *Node) Children(rel domain.Relation) []domain.Entity {
	return n.Relation[rel]
}

// Adopt appends children under rel and makes n their parent.
func (n *Node) Adopt(rel domain.Relation, children ...*Node) *Node {
	for _, c := range children {
		c.Up = n
		n.Relation[rel] = append(n.Relation[rel], c)
	}
	return n
}

// Link appends related entities under rel without touching their parent.
func (n *Node) Link(rel domain.Relation, related ...domain.Entity) *Node {
	n.Relation[rel] = append(n.Relation[rel], related...)
	return n
}

// T builds a user-triggered transition.
func T(id domain.TransitionID, to domain.StateID, from ...domain.StateID) domain.Transition {
	return domain.Transition{ID: id, To: to, From: from}
}

// WriteFile writes content to name inside a test temp dir and returns the path.
// It fails the test immediately on error.
func WriteFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644), "Failed to write %s", name)
	return path
}
