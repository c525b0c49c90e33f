package lims

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/aretw0/labflow/pkg/domain"
	"github.com/google/uuid"
)

// Lab is the in-memory entity graph of one laboratory.
// It resolves UIDs for front ends and answers the structural questions guards ask.
type Lab struct {
	mu       sync.RWMutex
	setup    Setup
	entities map[string]domain.Entity
	order    []string
	logger   *slog.Logger
	newUID   func() string
}

// Option configures the Lab.
type Option func(*Lab)

// WithSetup sets the laboratory switches.
func WithSetup(s Setup) Option {
	return func(l *Lab) {
		l.setup = s
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Lab) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithUIDGenerator overrides the generator of UIDs for entities the lab creates
// itself (retests, reflex analyses). Defaults to random UUIDs.
func WithUIDGenerator(gen func() string) Option {
	return func(l *Lab) {
		if gen != nil {
			l.newUID = gen
		}
	}
}

// NewLab creates an empty laboratory.
func NewLab(opts ...Option) *Lab {
	l := &Lab{
		setup:    DefaultSetup(),
		entities: make(map[string]domain.Entity),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		newUID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Setup returns the laboratory switches.
func (l *Lab) Setup() Setup {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.setup
}

// Resolve implements ports.EntityResolver.
func (l *Lab) Resolve(_ context.Context, uid string) (domain.Entity, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.entities[uid]
	if !ok {
		return nil, fmt.Errorf("%s: %w", uid, domain.ErrEntityNotFound)
	}
	return e, nil
}

// Entities returns every entity in registration order.
func (l *Lab) Entities() []domain.Entity {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.Entity, 0, len(l.order))
	for _, uid := range l.order {
		out = append(out, l.entities[uid])
	}
	return out
}

// Analysis returns the routine analysis with uid.
func (l *Lab) Analysis(uid string) (*Analysis, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.entities[uid].(*Analysis)
	return a, ok
}

func (l *Lab) add(e domain.Entity) error {
	if _, dup := l.entities[e.UID()]; dup {
		return fmt.Errorf("entity %s already exists", e.UID())
	}
	l.entities[e.UID()] = e
	l.order = append(l.order, e.UID())
	return nil
}

func (l *Lab) uid(requested string) string {
	if requested != "" {
		return requested
	}
	return l.newUID()
}

// NewSample registers a sample. An empty uid is generated.
func (l *Lab) NewSample(uid string) (*Sample, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := &Sample{node: node{lab: l, uid: l.uid(uid)}}
	return s, l.add(s)
}

// NewPartition registers a partition of s.
func (l *Lab) NewPartition(s *Sample, uid string) (*Partition, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := &Partition{node: node{lab: l, uid: l.uid(uid)}, sample: s}
	if err := l.add(p); err != nil {
		return nil, err
	}
	s.partitions = append(s.partitions, p)
	return p, nil
}

// NewRequest registers an analysis request on s covering the given partitions.
func (l *Lab) NewRequest(s *Sample, uid string, partitions ...*Partition) (*AnalysisRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := &AnalysisRequest{node: node{lab: l, uid: l.uid(uid)}, sample: s}
	for _, p := range partitions {
		if p.sample != s {
			return nil, fmt.Errorf("partition %s does not belong to sample %s", p.UID(), s.UID())
		}
		r.partitions = append(r.partitions, p)
	}
	if err := l.add(r); err != nil {
		return nil, err
	}
	s.requests = append(s.requests, r)
	return r, nil
}

// AnalysisSpec describes an analysis to register.
type AnalysisSpec struct {
	UID                   string
	Keyword               string
	Partition             *Partition
	Capture               PointOfCapture
	Result                string
	Calculation           *Calculation
	Dependencies          []*Analysis
	RequiredVerifications int
}

// NewAnalysis registers an analysis of r. No invariant is checked: this is the
// registration path, used before the request enters its workflow. Adding
// analyses to a request in progress goes through AddAnalysis.
func (l *Lab) NewAnalysis(r *AnalysisRequest, spec AnalysisSpec) (*Analysis, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.newAnalysis(r, spec)
}

func (l *Lab) newAnalysis(r *AnalysisRequest, spec AnalysisSpec) (*Analysis, error) {
	if spec.Keyword == "" {
		return nil, fmt.Errorf("analysis of %s: missing keyword", r.UID())
	}
	if spec.Partition != nil && !slices.Contains(r.partitions, domain.Entity(spec.Partition)) {
		return nil, fmt.Errorf("partition %s is not covered by request %s", spec.Partition.UID(), r.UID())
	}
	capture := spec.Capture
	if capture == "" {
		capture = CaptureLab
	}
	a := &Analysis{
		node:        node{lab: l, uid: l.uid(spec.UID)},
		keyword:     spec.Keyword,
		request:     r,
		partition:   spec.Partition,
		capture:     capture,
		result:      spec.Result,
		calculation: spec.Calculation,
		required:    spec.RequiredVerifications,
	}
	for _, dep := range spec.Dependencies {
		a.dependencies = append(a.dependencies, dep)
	}
	if err := l.add(a); err != nil {
		return nil, err
	}
	r.analyses = append(r.analyses, a)
	if a.partition != nil {
		a.partition.analyses = append(a.partition.analyses, a)
	}
	return a, nil
}

// NewWorksheet registers an empty worksheet.
func (l *Lab) NewWorksheet(uid string) (*Worksheet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := &Worksheet{node: node{lab: l, uid: l.uid(uid)}}
	return w, l.add(w)
}

// NewReferenceAnalysis places a reference analysis on w.
func (l *Lab) NewReferenceAnalysis(w *Worksheet, uid string) (*ControlAnalysis, error) {
	return l.newControl(w, uid, TypeReferenceAnalysis, "")
}

// NewDuplicateAnalysis places a duplicate of routine on w.
func (l *Lab) NewDuplicateAnalysis(w *Worksheet, uid string, routine *Analysis) (*ControlAnalysis, error) {
	return l.newControl(w, uid, TypeDuplicateAnalysis, routine.UID())
}

func (l *Lab) newControl(w *Worksheet, uid string, kind domain.EntityType, duplicateOf string) (*ControlAnalysis, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c := &ControlAnalysis{node: node{lab: l, uid: l.uid(uid)}, kind: kind, worksheet: w, duplicateOf: duplicateOf}
	if err := l.add(c); err != nil {
		return nil, err
	}
	w.analyses = append(w.analyses, c)
	return c, nil
}

// NewBatch registers an empty batch.
func (l *Lab) NewBatch(uid string) (*Batch, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := &Batch{node: node{lab: l, uid: l.uid(uid)}}
	return b, l.add(b)
}

// SetResult captures the result of a routine or control analysis.
func (l *Lab) SetResult(e domain.Entity, result string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch v := e.(type) {
	case *Analysis:
		v.result = result
	case *ControlAnalysis:
		v.result = result
	default:
		return fmt.Errorf("%s %s has no result", e.Type(), e.UID())
	}
	return nil
}

// SetPreservation flags whether p must go through preservation after sampling.
// Pre-preserved containers leave it unset.
func (l *Lab) SetPreservation(p *Partition, required bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p.preservation = required
}

// SetInterim sets one interim field of the calculation of a.
func (l *Lab) SetInterim(a *Analysis, name, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if a.calculation == nil {
		return fmt.Errorf("analysis %s has no calculation", a.UID())
	}
	if a.calculation.Interims == nil {
		a.calculation.Interims = make(map[string]string)
	}
	a.calculation.Interims[name] = value
	return nil
}

// RequiredVerifications is the number of verifications a needs, falling back to the setup.
func (l *Lab) RequiredVerifications(a *Analysis) int {
	if a.required > 0 {
		return a.required
	}
	return l.Setup().RequiredVerifications
}

func (l *Lab) dependentsOf(a *Analysis) []domain.Entity {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.Entity
	for _, uid := range l.order {
		other, ok := l.entities[uid].(*Analysis)
		if !ok || other == a {
			continue
		}
		if slices.Contains(other.dependencies, domain.Entity(a)) {
			out = append(out, other)
		}
	}
	return out
}
