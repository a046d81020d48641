package pipeline

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

type Status string

const (
	StatusProcessed Status = "processed"
	StatusDryRun    Status = "dry-run"
	StatusExisting  Status = "skipped-existing"
	StatusNoURLs    Status = "skipped-no-urls"
	StatusNoData    Status = "no-data"
	StatusFailed    Status = "failed"
)

// Outcome is what happened to one company in a run.
type Outcome struct {
	Company  string
	Status   Status
	Chunks   int
	Indexed  int
	Err      error
	Duration time.Duration
}

// Report collects outcomes from concurrent company workers.
type Report struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (r *Report) add(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

// Outcomes returns a copy in completion order.
func (r *Report) Outcomes() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Outcome(nil), r.outcomes...)
}

func (r *Report) Count(s Status) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, o := range r.outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Failed reports whether any company failed.
func (r *Report) Failed() bool {
	return r.Count(StatusFailed) > 0
}

func (r *Report) String() string {
	var b strings.Builder
	for _, s := range []Status{StatusProcessed, StatusDryRun, StatusExisting, StatusNoURLs, StatusNoData, StatusFailed} {
		if n := r.Count(s); n > 0 {
			if b.Len() > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%d", s, n)
		}
	}
	if b.Len() == 0 {
		return "no companies"
	}
	return b.String()
}
