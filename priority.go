package evalqueue

import (
	"encoding/json"
	"fmt"
)

// Priority is the scheduling tier of a job. Tiers are ordered by the
// weights in Config.PriorityWeights, not by their string value.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Priorities lists every tier from lowest to highest default weight.
func Priorities() []Priority {
	return []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent}
}

// Valid reports whether p is one of the known tiers.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ParsePriority converts a string to a Priority. An empty string maps to
// PriorityNormal.
func ParsePriority(s string) (Priority, error) {
	if s == "" {
		return PriorityNormal, nil
	}
	p := Priority(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPriority, s)
	}
	return p, nil
}

// UnmarshalJSON rejects unknown tiers.
func (p *Priority) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePriority(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// PriorityWeights maps each tier to its ordering weight. Higher weights
// are admitted first.
type PriorityWeights map[Priority]int

// Weight returns the configured weight for p, or zero if p is unknown.
func (w PriorityWeights) Weight(p Priority) int {
	return w[p]
}

// DefaultPriorityWeights returns low=1, normal=2, high=3, urgent=4.
func DefaultPriorityWeights() PriorityWeights {
	return PriorityWeights{
		PriorityLow:    1,
		PriorityNormal: 2,
		PriorityHigh:   3,
		PriorityUrgent: 4,
	}
}
