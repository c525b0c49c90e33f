package domain

// EntityType tags the kind of an entity (e.g. "Sample", "Analysis").
// Workflow definitions and hooks are keyed by it.
type EntityType string

// Relation names a kind of child link, resolved by the entity itself.
type Relation string

// Entity is any node of the object graph the engine drives.
//
// The engine does not own entities. It reads and mutates their state through a
// StateStore and walks the graph only through Parent and Children, which the
// domain layer implements per type.
type Entity interface {
	UID() string
	Type() EntityType
	// Parent returns the owning entity, or nil for roots.
	Parent() Entity
	// Children returns the related entities for rel. Unknown relations yield nil.
	Children(rel Relation) []Entity
}

// Ref is a lightweight identity used in events and diagnostics.
type Ref struct {
	UID  string     `json:"uid"`
	Type EntityType `json:"type"`
}

// RefOf builds the Ref of e.
func RefOf(e Entity) Ref {
	return Ref{UID: e.UID(), Type: e.Type()}
}
