// Package journal implements the Journal (C7): an append-only, in-memory
// record of per-generation particles and weights plus a free-form
// configuration map. Persistence format is out of scope (§1).
package journal

import "github.com/abcforge/abcsim/pkg/abcerrors"

// Entry is one generation's recorded state.
type Entry struct {
	Parameters [][]float64
	Weights    []float64
	// OptValues carries algorithm-specific extras recorded alongside a
	// generation — e.g. PMC's per-particle approximate likelihoods.
	OptValues []float64
}

// Journal accumulates Entries under the full_output policy (§4.7): 0 keeps
// only the final generation, 1 keeps every generation.
type Journal struct {
	Entries       []Entry
	Configuration map[string]any
	FullOutput    int
	// Status is set once a driver terminates, successfully or otherwise
	// (§7 propagation policy: driver errors finalize the journal with a
	// status rather than panicking mid-run).
	Status string
	// Err is set by FinalizeErr when Status names a failure kind rather
	// than a normal completion reason.
	Err *abcerrors.Error
}

// New builds a Journal recording the given configuration snapshot.
func New(fullOutput int, configuration map[string]any) (*Journal, error) {
	if fullOutput != 0 && fullOutput != 1 {
		return nil, abcerrors.New(abcerrors.InvalidConfiguration, "journal: full_output must be 0 or 1")
	}
	return &Journal{Configuration: configuration, FullOutput: fullOutput}, nil
}

// Record appends or replaces an entry depending on FullOutput and whether
// this is the run's final generation.
func (j *Journal) Record(entry Entry, isFinal bool) {
	switch j.FullOutput {
	case 1:
		j.Entries = append(j.Entries, entry)
	default:
		if isFinal {
			j.Entries = []Entry{entry}
		}
	}
}

// Finalize records a terminal status string, e.g. "completed",
// "anneal-converged".
func (j *Journal) Finalize(status string) {
	j.Status = status
}

// FinalizeErr records a terminal run-ending error (§7): the journal's
// Status becomes the error's Kind and Err carries the full *abcerrors.Error
// for callers that want the typed reason rather than just the label.
func (j *Journal) FinalizeErr(err *abcerrors.Error) {
	j.Status = err.Kind.String()
	j.Err = err
}
