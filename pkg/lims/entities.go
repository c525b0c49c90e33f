package lims

import (
	"slices"

	"github.com/aretw0/labflow/pkg/domain"
)

// node is the graph bookkeeping shared by every entity type.
// Relation slices are guarded by the Lab lock.
type node struct {
	lab *Lab
	uid string
}

func (n *node) UID() string { return n.uid }

func (n *node) snapshot(list []domain.Entity) []domain.Entity {
	n.lab.mu.RLock()
	defer n.lab.mu.RUnlock()
	return slices.Clone(list)
}

// Sample is the physical specimen. Its partitions are the containers it was split
// into; its requests are the analysis requests ordered on it.
type Sample struct {
	node
	partitions []domain.Entity
	requests   []domain.Entity
}

func (s *Sample) Type() domain.EntityType { return TypeSample }
func (s *Sample) Parent() domain.Entity   { return nil }

func (s *Sample) Children(rel domain.Relation) []domain.Entity {
	switch rel {
	case RelPartitions:
		return s.snapshot(s.partitions)
	case RelRequests:
		return s.snapshot(s.requests)
	}
	return nil
}

// Partition is one container of a Sample.
type Partition struct {
	node
	sample       *Sample
	analyses     []domain.Entity
	preservation bool
}

func (p *Partition) Type() domain.EntityType { return TypePartition }

func (p *Partition) Parent() domain.Entity {
	if p.sample == nil {
		return nil
	}
	return p.sample
}

func (p *Partition) Children(rel domain.Relation) []domain.Entity {
	if rel == RelAnalyses {
		return p.snapshot(p.analyses)
	}
	return nil
}

// Sample returns the parent sample.
func (p *Partition) Sample() *Sample { return p.sample }

// NeedsPreservation reports whether the container must be preserved once sampled.
func (p *Partition) NeedsPreservation() bool {
	p.lab.mu.RLock()
	defer p.lab.mu.RUnlock()
	return p.preservation
}

// AnalysisRequest orders analyses on a Sample.
type AnalysisRequest struct {
	node
	sample     *Sample
	batch      *Batch
	partitions []domain.Entity
	analyses   []domain.Entity
}

func (r *AnalysisRequest) Type() domain.EntityType { return TypeRequest }

func (r *AnalysisRequest) Parent() domain.Entity {
	if r.sample == nil {
		return nil
	}
	return r.sample
}

func (r *AnalysisRequest) Children(rel domain.Relation) []domain.Entity {
	switch rel {
	case RelPartitions:
		return r.snapshot(r.partitions)
	case RelAnalyses:
		return r.snapshot(r.analyses)
	}
	return nil
}

// Sample returns the sample the request was ordered on.
func (r *AnalysisRequest) Sample() *Sample { return r.sample }

// Batch returns the batch the request belongs to, or nil.
func (r *AnalysisRequest) Batch() *Batch {
	r.lab.mu.RLock()
	defer r.lab.mu.RUnlock()
	return r.batch
}

// Calculation derives a result from interim fields and other analyses.
type Calculation struct {
	Name     string
	Interims map[string]string
}

// Resolved reports whether every interim field holds a value.
func (c *Calculation) Resolved() bool {
	if c == nil || len(c.Interims) == 0 {
		return false
	}
	for _, v := range c.Interims {
		if v == "" {
			return false
		}
	}
	return true
}

// PointOfCapture tells where an analysis result is produced.
type PointOfCapture string

const (
	CaptureLab   PointOfCapture = "lab"
	CaptureField PointOfCapture = "field"
)

// Analysis is one measurement of a request.
type Analysis struct {
	node
	keyword      string
	request      *AnalysisRequest
	partition    *Partition
	worksheet    *Worksheet
	capture      PointOfCapture
	result       string
	calculation  *Calculation
	dependencies []domain.Entity
	required     int
	retestOf     string
	reflexOf     string
}

func (a *Analysis) Type() domain.EntityType { return TypeAnalysis }

func (a *Analysis) Parent() domain.Entity {
	if a.request == nil {
		return nil
	}
	return a.request
}

func (a *Analysis) Children(rel domain.Relation) []domain.Entity {
	switch rel {
	case RelDependencies:
		return a.snapshot(a.dependencies)
	case RelDependents:
		return a.lab.dependentsOf(a)
	}
	return nil
}

// Keyword identifies the analysis service.
func (a *Analysis) Keyword() string { return a.keyword }

// Request returns the analysis request.
func (a *Analysis) Request() *AnalysisRequest { return a.request }

// Partition returns the partition the analysis is measured on, or nil.
func (a *Analysis) Partition() *Partition { return a.partition }

// Worksheet returns the worksheet the analysis is assigned to, or nil.
func (a *Analysis) Worksheet() *Worksheet {
	a.lab.mu.RLock()
	defer a.lab.mu.RUnlock()
	return a.worksheet
}

// Result returns the captured result.
func (a *Analysis) Result() string {
	a.lab.mu.RLock()
	defer a.lab.mu.RUnlock()
	return a.result
}

// Calculation returns the name of the calculation the result is bound to.
func (a *Analysis) Calculation() (string, bool) {
	if a.calculation == nil {
		return "", false
	}
	return a.calculation.Name, true
}

// CalculationResolved reports whether the bound calculation has every interim value.
func (a *Analysis) CalculationResolved() bool {
	a.lab.mu.RLock()
	defer a.lab.mu.RUnlock()
	return a.calculation.Resolved()
}

// Capture returns where the result is produced.
func (a *Analysis) Capture() PointOfCapture { return a.capture }

// RetestOf returns the UID of the analysis this one retests.
func (a *Analysis) RetestOf() string { return a.retestOf }

// ReflexOf returns the UID of the analysis whose reflex rule created this one.
func (a *Analysis) ReflexOf() string { return a.reflexOf }

// Worksheet groups analyses for bench work.
type Worksheet struct {
	node
	analyses []domain.Entity
}

func (w *Worksheet) Type() domain.EntityType { return TypeWorksheet }
func (w *Worksheet) Parent() domain.Entity   { return nil }

func (w *Worksheet) Children(rel domain.Relation) []domain.Entity {
	if rel == RelAnalyses {
		return w.snapshot(w.analyses)
	}
	return nil
}

// ControlAnalysis is a quality control measurement living on a worksheet:
// a reference analysis or a duplicate of a routine analysis.
type ControlAnalysis struct {
	node
	kind        domain.EntityType
	worksheet   *Worksheet
	result      string
	duplicateOf string
}

func (c *ControlAnalysis) Type() domain.EntityType { return c.kind }

func (c *ControlAnalysis) Parent() domain.Entity {
	if c.worksheet == nil {
		return nil
	}
	return c.worksheet
}

func (c *ControlAnalysis) Children(domain.Relation) []domain.Entity { return nil }

// Result returns the captured result.
func (c *ControlAnalysis) Result() string {
	c.lab.mu.RLock()
	defer c.lab.mu.RUnlock()
	return c.result
}

// DuplicateOf returns the UID of the duplicated routine analysis.
func (c *ControlAnalysis) DuplicateOf() string { return c.duplicateOf }

// Batch groups analysis requests.
type Batch struct {
	node
	requests []domain.Entity
}

func (b *Batch) Type() domain.EntityType { return TypeBatch }
func (b *Batch) Parent() domain.Entity   { return nil }

func (b *Batch) Children(rel domain.Relation) []domain.Entity {
	if rel == RelRequests {
		return b.snapshot(b.requests)
	}
	return nil
}
