package harness

// TraceEvent is the outcome of one scenario step.
type TraceEvent struct {
	// Step is the 1-based step number.
	Step int

	// Op is the step operation.
	Op string

	// Args holds the step inputs that were set.
	Args map[string]any

	// Outcome holds what the operation returned. Failed operations carry
	// only an "error" entry with the error kind.
	Outcome map[string]any
}

// Canonical returns the event as a plain map for deterministic encoding.
func (e TraceEvent) Canonical() any {
	out := map[string]any{
		"step":    e.Step,
		"op":      e.Op,
		"outcome": e.Outcome,
	}
	if len(e.Args) > 0 {
		out["args"] = e.Args
	}
	return out
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause matched.
	Pass bool

	// Trace holds one event per step.
	Trace []TraceEvent

	// Errors lists expect mismatches. Empty if Pass is true.
	Errors []string
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records an expect mismatch and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step outcome.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
