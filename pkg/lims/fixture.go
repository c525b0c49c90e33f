package lims

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/aretw0/labflow/pkg/ports"
	"gopkg.in/yaml.v3"
)

//go:embed fixtures/demo.yaml
var demoYAML []byte

// Fixture is the YAML description of a laboratory.
type Fixture struct {
	Setup      map[string]any     `yaml:"setup"`
	Samples    []SampleFixture    `yaml:"samples"`
	Worksheets []WorksheetFixture `yaml:"worksheets"`
	Batches    []BatchFixture     `yaml:"batches"`
}

type SampleFixture struct {
	UID        string           `yaml:"uid"`
	Partitions []string         `yaml:"partitions"`
	Preserve   []string         `yaml:"preserve"`
	Requests   []RequestFixture `yaml:"requests"`
}

type RequestFixture struct {
	UID        string            `yaml:"uid"`
	Partitions []string          `yaml:"partitions"`
	Analyses   []AnalysisFixture `yaml:"analyses"`
}

type AnalysisFixture struct {
	UID                   string              `yaml:"uid"`
	Keyword               string              `yaml:"keyword"`
	Partition             string              `yaml:"partition"`
	Capture               PointOfCapture      `yaml:"capture"`
	Result                string              `yaml:"result"`
	Calculation           *CalculationFixture `yaml:"calculation"`
	Dependencies          []string            `yaml:"dependencies"`
	RequiredVerifications int                 `yaml:"required_verifications"`
}

type CalculationFixture struct {
	Name     string            `yaml:"name"`
	Interims map[string]string `yaml:"interims"`
}

type WorksheetFixture struct {
	UID        string             `yaml:"uid"`
	Analyses   []string           `yaml:"analyses"`
	References []string           `yaml:"references"`
	Duplicates []DuplicateFixture `yaml:"duplicates"`
}

type DuplicateFixture struct {
	UID string `yaml:"uid"`
	Of  string `yaml:"of"`
}

type BatchFixture struct {
	UID      string   `yaml:"uid"`
	Requests []string `yaml:"requests"`
}

// ParseFixture decodes a fixture from YAML.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	return &f, nil
}

// LoadFixture reads and decodes a YAML fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	return ParseFixture(data)
}

// DemoFixture returns the built-in demonstration laboratory.
func DemoFixture() *Fixture {
	f, err := ParseFixture(demoYAML)
	if err != nil {
		panic(err)
	}
	return f
}

// Build creates the entity graph. Worksheet assignments go through the engine
// and are applied separately by Apply.
func (f *Fixture) Build(opts ...Option) (*Lab, error) {
	setup, err := DecodeSetup(f.Setup)
	if err != nil {
		return nil, err
	}
	lab := NewLab(append([]Option{WithSetup(setup)}, opts...)...)

	analyses := make(map[string]*Analysis)
	deps := make(map[*Analysis][]string)
	requests := make(map[string]*AnalysisRequest)

	for _, sf := range f.Samples {
		s, err := lab.NewSample(sf.UID)
		if err != nil {
			return nil, err
		}
		partitions := make(map[string]*Partition)
		for _, uid := range sf.Partitions {
			p, err := lab.NewPartition(s, uid)
			if err != nil {
				return nil, err
			}
			partitions[uid] = p
		}
		for _, uid := range sf.Preserve {
			p, ok := partitions[uid]
			if !ok {
				return nil, fmt.Errorf("sample %s: unknown partition %s to preserve", sf.UID, uid)
			}
			lab.SetPreservation(p, true)
		}
		for _, rf := range sf.Requests {
			var covered []*Partition
			for _, uid := range rf.Partitions {
				p, ok := partitions[uid]
				if !ok {
					return nil, fmt.Errorf("request %s: unknown partition %s", rf.UID, uid)
				}
				covered = append(covered, p)
			}
			r, err := lab.NewRequest(s, rf.UID, covered...)
			if err != nil {
				return nil, err
			}
			requests[r.UID()] = r

			for _, af := range rf.Analyses {
				spec := AnalysisSpec{
					UID:                   af.UID,
					Keyword:               af.Keyword,
					Capture:               af.Capture,
					Result:                af.Result,
					RequiredVerifications: af.RequiredVerifications,
				}
				if af.Partition != "" {
					p, ok := partitions[af.Partition]
					if !ok {
						return nil, fmt.Errorf("analysis %s: unknown partition %s", af.UID, af.Partition)
					}
					spec.Partition = p
				}
				if af.Calculation != nil {
					spec.Calculation = &Calculation{Name: af.Calculation.Name, Interims: af.Calculation.Interims}
				}
				a, err := lab.NewAnalysis(r, spec)
				if err != nil {
					return nil, err
				}
				analyses[a.UID()] = a
				deps[a] = af.Dependencies
			}
		}
	}

	lab.mu.Lock()
	for a, uids := range deps {
		for _, uid := range uids {
			dep, ok := analyses[uid]
			if !ok {
				lab.mu.Unlock()
				return nil, fmt.Errorf("analysis %s: unknown dependency %s", a.UID(), uid)
			}
			a.dependencies = append(a.dependencies, dep)
		}
	}
	lab.mu.Unlock()

	for _, wf := range f.Worksheets {
		ws, err := lab.NewWorksheet(wf.UID)
		if err != nil {
			return nil, err
		}
		for _, uid := range wf.References {
			if _, err := lab.NewReferenceAnalysis(ws, uid); err != nil {
				return nil, err
			}
		}
		for _, d := range wf.Duplicates {
			routine, ok := analyses[d.Of]
			if !ok {
				return nil, fmt.Errorf("duplicate %s: unknown analysis %s", d.UID, d.Of)
			}
			if _, err := lab.NewDuplicateAnalysis(ws, d.UID, routine); err != nil {
				return nil, err
			}
		}
	}

	lab.mu.Lock()
	defer lab.mu.Unlock()
	for _, bf := range f.Batches {
		b := &Batch{node: node{lab: lab, uid: lab.uid(bf.UID)}}
		if err := lab.add(b); err != nil {
			return nil, err
		}
		for _, uid := range bf.Requests {
			r, ok := requests[uid]
			if !ok {
				return nil, fmt.Errorf("batch %s: unknown request %s", bf.UID, uid)
			}
			r.batch = b
			b.requests = append(b.requests, r)
		}
	}
	return lab, nil
}

// Apply assigns the worksheet analyses of the fixture through wf. Analyses the
// store already holds as assigned, from an earlier run on a persistent store,
// are only linked.
func (f *Fixture) Apply(ctx context.Context, wf ports.Workflow, lab *Lab) error {
	var errs []error
	for _, wsf := range f.Worksheets {
		e, err := lab.Resolve(ctx, wsf.UID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ws := e.(*Worksheet)
		for _, uid := range wsf.Analyses {
			a, ok := lab.Analysis(uid)
			if !ok {
				errs = append(errs, fmt.Errorf("worksheet %s: unknown analysis %s", wsf.UID, uid))
				continue
			}
			if wf.State(ctx, a, AxisAssignment) == StateAssigned {
				if _, err := lab.attach(ws, a); err != nil {
					errs = append(errs, err)
				}
				continue
			}
			out, err := lab.Assign(ctx, wf, ws, a)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if !out.Performed {
				errs = append(errs, fmt.Errorf("assign %s to %s: %s", uid, wsf.UID, out.Message))
			}
		}
	}
	return errors.Join(errs...)
}
