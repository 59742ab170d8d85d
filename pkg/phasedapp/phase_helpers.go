package phasedapp

import (
	"strings"

	"github.com/BrianJOC/app-provisioner/phases"
)

// Builder helps compose ordered phase lists with duplicate detection.
type Builder struct {
	phases []phases.Phase
	seen   map[string]struct{}
	err    error
}

// NewBuilder constructs an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		seen: make(map[string]struct{}),
	}
}

// AddPhase appends a phase, capturing duplicate/validation errors.
func (b *Builder) AddPhase(phase phases.Phase) *Builder {
	if b == nil || phase == nil || b.err != nil {
		return b
	}
	meta := phase.Metadata()
	if meta.ID == "" {
		b.err = phases.ValidationError{Reason: "phase id must not be empty"}
		return b
	}
	if _, exists := b.seen[meta.ID]; exists {
		b.err = phases.DuplicatePhaseError{ID: meta.ID}
		return b
	}
	b.seen[meta.ID] = struct{}{}
	b.phases = append(b.phases, phase)
	return b
}

// AddPhases appends multiple phases, stopping early on error.
func (b *Builder) AddPhases(list ...phases.Phase) *Builder {
	for _, ph := range list {
		b.AddPhase(ph)
	}
	return b
}

// Build returns the accumulated phase slice or any captured error.
func (b *Builder) Build() ([]phases.Phase, error) {
	if b == nil {
		return nil, nil
	}
	if b.err != nil {
		return nil, b.err
	}
	out := make([]phases.Phase, len(b.phases))
	copy(out, b.phases)
	return out, nil
}

// PhaseFilter matches phases based on metadata properties.
type PhaseFilter func(phases.PhaseMetadata) bool

// WithTag matches phases containing the provided tag (case-insensitive).
func WithTag(tag string) PhaseFilter {
	return func(meta phases.PhaseMetadata) bool {
		for _, t := range meta.Tags {
			if strings.EqualFold(t, tag) {
				return true
			}
		}
		return false
	}
}

// NeedsElevation matches phases that require administrator rights.
func NeedsElevation() PhaseFilter {
	return func(meta phases.PhaseMetadata) bool {
		return meta.RequiresElevation
	}
}

// SelectPhases returns phases that satisfy every provided filter. When no
// filters are supplied, all phases are returned.
func SelectPhases(list []phases.Phase, filters ...PhaseFilter) []phases.Phase {
	if len(list) == 0 {
		return nil
	}
	var res []phases.Phase
outer:
	for _, ph := range list {
		if ph == nil {
			continue
		}
		meta := ph.Metadata()
		for _, filter := range filters {
			if filter != nil && !filter(meta) {
				continue outer
			}
		}
		res = append(res, ph)
	}
	return res
}
