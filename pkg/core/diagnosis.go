package core

import "time"

// Diagnosis is the Reflector's structured explanation of why a candidate
// failed specific scenarios: likely root causes phrased as missing or
// incorrect instructions, plus concrete textual fixes.
type Diagnosis struct {
	CandidateID    string    `json:"candidate_id"`
	RootCauses     []string  `json:"root_causes"`
	SuggestedFixes []string  `json:"suggested_fixes"`
	CreatedAt      time.Time `json:"created_at"`
}

// Findings flattens the diagnosis into the textual findings fed to the Evolver.
func (d *Diagnosis) Findings() []string {
	out := make([]string, 0, len(d.RootCauses)+len(d.SuggestedFixes))
	out = append(out, d.RootCauses...)
	out = append(out, d.SuggestedFixes...)
	return out
}
