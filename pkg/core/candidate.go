package core

import "time"

// CreationReason distinguishes the seed instruction from search-produced variants.
type CreationReason string

const (
	ReasonSeed     CreationReason = "seed"
	ReasonMutation CreationReason = "mutation"
)

// Candidate is one version of the instruction text under optimization.
// The instruction is immutable once created; evolution always produces a new
// candidate, never mutates one in place.
type Candidate struct {
	ID          string         `json:"id"`
	Instruction string         `json:"instruction"`
	ParentIDs   []string       `json:"parent_ids"`
	Generation  int            `json:"generation"`
	Reason      CreationReason `json:"creation_reason"`
	CreatedAt   time.Time      `json:"created_at"`
}

// IsSeed reports whether the candidate is the root of the lineage.
func (c *Candidate) IsSeed() bool {
	return c.Reason == ReasonSeed && len(c.ParentIDs) == 0
}
