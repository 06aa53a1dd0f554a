package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"
	"github.com/kinfolk-ai/kinfolk/pkg/leaselock"
	"github.com/kinfolk-ai/kinfolk/pkg/logger"
	"github.com/kinfolk-ai/kinfolk/pkg/merge"
)

const (
	// DefaultAutoThreshold only auto-approves candidates scored 1.
	DefaultAutoThreshold = 1.0
	// LockKey is the lease held for the duration of a run.
	LockKey = "kinfolk:reconcile"
)

// ErrStop may be returned by an Approver to end a run early without error.
var ErrStop = errors.New("reconcile stopped")

// Approver decides whether a candidate that was not auto-approved should be
// merged.
type Approver func(ctx context.Context, c Candidate) (bool, error)

// Policy decides which candidates a run merges. A zero AutoThreshold is
// read as DefaultAutoThreshold, so an explicit zero cannot be expressed.
type Policy struct {
	// AutoApprove merges candidates at or above AutoThreshold without asking.
	// Candidates with contradicting birth dates are never auto-approved.
	AutoApprove   bool
	AutoThreshold float64
	Approver      Approver
	// MaxMerges caps merges per run. Zero means no cap.
	MaxMerges    int
	MergedBy     string
	LinkCollapse merge.LinkCollapse
}

// DefaultPolicy auto-approves nothing. Without an Approver a run then
// merges nothing and only reports what remains.
func DefaultPolicy() Policy {
	return Policy{AutoThreshold: DefaultAutoThreshold}
}

// RunReport summarizes one reconciliation run. Stale counts candidates
// whose pair no longer existed when their turn came.
type RunReport struct {
	Merges    []merge.MergeReport `json:"merges"`
	Rejected  int                 `json:"rejected"`
	Stale     int                 `json:"stale"`
	Remaining int                 `json:"remaining"`
	Stopped   bool                `json:"stopped,omitempty"`
}

// Merger is satisfied by *merge.Manager.
type Merger interface {
	Merge(ctx context.Context, keepID, mergeID int64, opts merge.MergeOptions) (merge.MergeReport, error)
}

// Locker serializes runs across processes.
type Locker interface {
	WithLease(ctx context.Context, key string, opts leaselock.Options, fn func(ctx context.Context) error) error
}

// Reconciler drives the find, approve, merge loop.
type Reconciler struct {
	finder    *Finder
	merger    Merger
	locker    Locker
	leaseOpts leaselock.Options
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithLocker holds a lease on LockKey for the duration of each run.
func WithLocker(l Locker, opts leaselock.Options) ReconcilerOption {
	return func(r *Reconciler) {
		r.locker = l
		r.leaseOpts = opts
	}
}

// NewReconciler runs without a lease unless WithLocker is given.
func NewReconciler(finder *Finder, merger Merger, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		finder:    finder,
		merger:    merger,
		leaseOpts: leaselock.Options{TTL: 2 * time.Minute},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(r)
	}
	return r
}

// Finder returns the finder used for scans.
func (r *Reconciler) Finder() *Finder {
	return r.finder
}

// Run merges approved candidates one at a time, highest confidence first,
// and rescans after every merge because a merge changes the profiles of
// the survivor. The lower id of each pair survives.
func (r *Reconciler) Run(ctx context.Context, policy Policy) (RunReport, error) {
	if policy.AutoThreshold == 0 {
		policy.AutoThreshold = DefaultAutoThreshold
	}
	if policy.AutoThreshold < 0 || policy.AutoThreshold > 1 {
		return RunReport{}, genealogy.NewValidationError("auto_threshold", "must be within [0, 1]")
	}
	if policy.MaxMerges < 0 {
		return RunReport{}, genealogy.NewValidationError("max_merges", "must not be negative")
	}

	if r.locker == nil {
		return r.run(ctx, policy)
	}
	var report RunReport
	err := r.locker.WithLease(ctx, LockKey, r.leaseOpts, func(ctx context.Context) error {
		var err error
		report, err = r.run(ctx, policy)
		return err
	})
	return report, err
}

type pair struct {
	a, b int64
}

func (r *Reconciler) run(ctx context.Context, policy Policy) (RunReport, error) {
	report := RunReport{Merges: []merge.MergeReport{}}
	skipped := map[pair]bool{}

	for policy.MaxMerges == 0 || len(report.Merges) < policy.MaxMerges {
		candidates, err := r.finder.FindDuplicates(ctx)
		if err != nil {
			return report, err
		}

		chosen, err := r.choose(ctx, policy, candidates, skipped, &report)
		if errors.Is(err, ErrStop) {
			report.Stopped = true
			break
		}
		if err != nil {
			return report, err
		}
		if chosen == nil {
			break
		}

		conf, err := genealogy.NewConfidence(chosen.Confidence)
		if err != nil {
			return report, err
		}
		res, err := r.merger.Merge(ctx, chosen.PersonA, chosen.PersonB, merge.MergeOptions{
			Confidence:   conf,
			Reasons:      chosen.Reasons,
			MergedBy:     policy.MergedBy,
			LinkCollapse: policy.LinkCollapse,
		})
		if errors.Is(err, genealogy.ErrNotFound) {
			logger.Warn("[Reconcile] Candidate is stale", "keep_id", chosen.PersonA, "merge_id", chosen.PersonB)
			skipped[pair{chosen.PersonA, chosen.PersonB}] = true
			report.Stale++
			continue
		}
		if err != nil {
			return report, err
		}
		report.Merges = append(report.Merges, res)
	}

	remaining, err := r.finder.FindDuplicates(ctx)
	if err != nil {
		return report, err
	}
	report.Remaining = len(remaining)

	logger.Info("[Reconcile] Run finished",
		"merged", len(report.Merges),
		"rejected", report.Rejected,
		"stale", report.Stale,
		"remaining", report.Remaining,
	)
	return report, nil
}

// choose returns the first approved candidate, asking the approver about
// each unapproved one at most once per run.
func (r *Reconciler) choose(
	ctx context.Context,
	policy Policy,
	candidates []Candidate,
	skipped map[pair]bool,
	report *RunReport,
) (*Candidate, error) {
	for i := range candidates {
		c := &candidates[i]
		key := pair{c.PersonA, c.PersonB}
		if skipped[key] {
			continue
		}
		if policy.AutoApprove && !c.Veto && c.Confidence >= policy.AutoThreshold {
			return c, nil
		}
		if policy.Approver == nil {
			continue
		}
		ok, err := policy.Approver(ctx, *c)
		if err != nil {
			return nil, err
		}
		if ok {
			return c, nil
		}
		skipped[key] = true
		report.Rejected++
	}
	return nil, nil
}
