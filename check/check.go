// Package check runs assertions against the live HN API and reports one
// Result per check.
package check

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/danielmmetz/hn-apicheck/hn"
)

const (
	GroupCore = "core"
	GroupEdge = "edge"
)

type Outcome string

const (
	OutcomePass  Outcome = "pass"
	OutcomeFail  Outcome = "fail"
	OutcomeSkip  Outcome = "skip"
	OutcomeError Outcome = "error"
)

// Check is a single named assertion. Run returns nil on success, an
// *AssertionError on a failed expectation, or a skip via Skipf.
type Check struct {
	Group string
	Name  string
	Run   func(ctx context.Context, p *Probe) error
}

// Result is the outcome of one check.
type Result struct {
	Group    string         `json:"group"`
	Name     string         `json:"name"`
	Outcome  Outcome        `json:"outcome"`
	Message  string         `json:"message,omitempty"`
	Observed map[string]any `json:"observed,omitempty"`
	Started  time.Time      `json:"started"`
	Duration time.Duration  `json:"duration"`
}

// OK reports whether the result counts as passing. Skips pass vacuously.
func (r Result) OK() bool {
	return r.Outcome == OutcomePass || r.Outcome == OutcomeSkip
}

// Probe is what a check sees while it runs.
type Probe struct {
	Client *hn.Client
	Now    func() time.Time

	observed map[string]any
}

// Observe attaches a value to the check's result.
func (p *Probe) Observe(key string, value any) {
	if p.observed == nil {
		p.observed = make(map[string]any)
	}
	p.observed[key] = value
}

// AssertionError is a failed expectation.
type AssertionError struct {
	Expectation string
	Observed    any
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s (observed: %v)", e.Expectation, e.Observed)
}

type skipError struct{ reason string }

func (e *skipError) Error() string { return e.reason }

// Skipf ends a check without failing it: the condition it looks for was not
// present in the sampled data.
func Skipf(format string, args ...any) error {
	return &skipError{reason: fmt.Sprintf(format, args...)}
}

// expect returns an AssertionError when cond is false.
func expect(cond bool, expectation string, observed any) error {
	if cond {
		return nil
	}
	return &AssertionError{Expectation: expectation, Observed: observed}
}

// Reporter receives every result as soon as its check finishes.
type Reporter interface {
	Report(ctx context.Context, r Result)
}

// Suite is an ordered list of checks bound to a client.
type Suite struct {
	client   *hn.Client
	checks   []Check
	now      func() time.Time
	reporter Reporter
}

type SuiteOption func(*Suite)

// WithGroups keeps only checks from the named groups.
func WithGroups(groups ...string) SuiteOption {
	return func(s *Suite) {
		s.checks = slices.DeleteFunc(s.checks, func(c Check) bool {
			return !slices.Contains(groups, c.Group)
		})
	}
}

func WithClock(now func() time.Time) SuiteOption {
	return func(s *Suite) { s.now = now }
}

func WithReporter(r Reporter) SuiteOption {
	return func(s *Suite) { s.reporter = r }
}

// NewSuite builds the core and edge groups, in that order.
func NewSuite(client *hn.Client, opts ...SuiteOption) *Suite {
	s := &Suite{
		client: client,
		checks: slices.Concat(CoreChecks(), EdgeChecks()),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Suite) Checks() []Check { return slices.Clone(s.checks) }

// Run executes every check in order. A failing check does not stop the
// others; cancelling ctx does.
func (s *Suite) Run(ctx context.Context) []Result {
	results := make([]Result, 0, len(s.checks))
	for _, c := range s.checks {
		if ctx.Err() != nil {
			break
		}
		r := RunCheck(ctx, c, s.client, s.now)
		if s.reporter != nil {
			s.reporter.Report(ctx, r)
		}
		results = append(results, r)
	}
	return results
}

// RunCheck executes a single check and classifies its error.
func RunCheck(ctx context.Context, c Check, client *hn.Client, now func() time.Time) (r Result) {
	p := &Probe{Client: client, Now: now}
	r = Result{Group: c.Group, Name: c.Name, Started: now()}
	start := time.Now()

	defer func() {
		if v := recover(); v != nil {
			r.Outcome = OutcomeError
			r.Message = fmt.Sprintf("panic: %v", v)
		}
		r.Observed = p.observed
		r.Duration = time.Since(start)
	}()

	err := c.Run(ctx, p)

	var (
		skip *skipError
		aerr *AssertionError
	)
	switch {
	case err == nil:
		r.Outcome = OutcomePass
	case errors.As(err, &skip):
		r.Outcome = OutcomeSkip
		r.Message = skip.reason
	case errors.As(err, &aerr):
		r.Outcome = OutcomeFail
		r.Message = err.Error()
	default:
		r.Outcome = OutcomeError
		r.Message = err.Error()
	}
	return r
}

// Summary counts results by outcome.
type Summary struct {
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Errored int `json:"errored"`
}

func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		switch r.Outcome {
		case OutcomePass:
			s.Passed++
		case OutcomeFail:
			s.Failed++
		case OutcomeSkip:
			s.Skipped++
		case OutcomeError:
			s.Errored++
		}
	}
	return s
}

// OK reports whether nothing failed or errored.
func (s Summary) OK() bool { return s.Failed == 0 && s.Errored == 0 }

func (s Summary) Total() int { return s.Passed + s.Failed + s.Skipped + s.Errored }
