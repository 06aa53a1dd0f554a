// Package reconcile finds likely duplicate people and merges them under an
// approval policy.
package reconcile

import (
	"cmp"
	"context"
	"runtime"
	"slices"

	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"
	"github.com/kinfolk-ai/kinfolk/pkg/logger"
	"github.com/kinfolk-ai/kinfolk/pkg/similarity"

	"golang.org/x/sync/errgroup"
)

// DefaultMinConfidence is the lowest confidence reported as a candidate.
const DefaultMinConfidence = 0.60

// Candidate is a scored pair. PersonA always has the lower id and is the
// proposed survivor.
type Candidate struct {
	PersonA    int64    `json:"person_a" yaml:"person_a"`
	PersonB    int64    `json:"person_b" yaml:"person_b"`
	NameA      string   `json:"name_a" yaml:"name_a"`
	NameB      string   `json:"name_b" yaml:"name_b"`
	Confidence float64  `json:"confidence" yaml:"confidence"`
	Reasons    []string `json:"reasons" yaml:"reasons"`
	Veto       bool     `json:"veto,omitempty" yaml:"veto,omitempty"`
}

// ProfileSource supplies the people to compare, read from one snapshot.
type ProfileSource interface {
	ListPersonProfiles(ctx context.Context) ([]genealogy.PersonProfile, error)
}

// FinderConfig tunes the duplicate scan.
type FinderConfig struct {
	MinConfidence float64
	// Workers bounds concurrent scoring rows. Zero means GOMAXPROCS.
	Workers int
	// BlockingPrefix, when positive, only compares people sharing a folded
	// name prefix of that many runes across any of their names.
	BlockingPrefix int
}

// DefaultFinderConfig scans every pair with DefaultMinConfidence.
func DefaultFinderConfig() FinderConfig {
	return FinderConfig{MinConfidence: DefaultMinConfidence}
}

// Finder scans a ProfileSource for likely duplicates.
type Finder struct {
	source ProfileSource
	scorer *similarity.Scorer
	cfg    FinderConfig
}

// NewFinder validates cfg and resolves a zero Workers to GOMAXPROCS.
func NewFinder(source ProfileSource, scorer *similarity.Scorer, cfg FinderConfig) (*Finder, error) {
	if cfg.MinConfidence < 0 || cfg.MinConfidence > 1 {
		return nil, genealogy.NewValidationError("min_confidence", "must be within [0, 1]")
	}
	if cfg.Workers < 0 {
		return nil, genealogy.NewValidationError("workers", "must not be negative")
	}
	if cfg.BlockingPrefix < 0 {
		return nil, genealogy.NewValidationError("blocking_prefix", "must not be negative")
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &Finder{source: source, scorer: scorer, cfg: cfg}, nil
}

// Config returns the effective configuration.
func (f *Finder) Config() FinderConfig {
	return f.cfg
}

// FindDuplicates scores every unordered pair of people and returns those at
// or above MinConfidence, most confident first. Equal confidences keep scan
// order. No candidates is an empty slice.
func (f *Finder) FindDuplicates(ctx context.Context) ([]Candidate, error) {
	profiles, err := f.source.ListPersonProfiles(ctx)
	if err != nil {
		return nil, err
	}
	return f.Candidates(ctx, profiles)
}

// Candidates runs the pairwise scan over profiles already in memory.
func (f *Finder) Candidates(ctx context.Context, profiles []genealogy.PersonProfile) ([]Candidate, error) {
	profiles = slices.Clone(profiles)
	slices.SortFunc(profiles, func(a, b genealogy.PersonProfile) int { return cmp.Compare(a.ID, b.ID) })

	var blocks [][]string
	if f.cfg.BlockingPrefix > 0 {
		blocks = make([][]string, len(profiles))
		for i, p := range profiles {
			blocks[i] = blockingKeys(p, f.cfg.BlockingPrefix)
		}
	}

	rows := make([][]Candidate, len(profiles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Workers)
	for i := range profiles {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var row []Candidate
			for j := i + 1; j < len(profiles); j++ {
				if blocks != nil && !shareKey(blocks[i], blocks[j]) {
					continue
				}
				res, ok := f.scorer.Score(profiles[i], profiles[j])
				if !ok || res.Confidence < f.cfg.MinConfidence {
					continue
				}
				row = append(row, Candidate{
					PersonA:    profiles[i].ID,
					PersonB:    profiles[j].ID,
					NameA:      profiles[i].PrimaryName,
					NameB:      profiles[j].PrimaryName,
					Confidence: res.Confidence,
					Reasons:    res.Reasons(),
					Veto:       res.Veto,
				})
			}
			rows[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := []Candidate{}
	for _, row := range rows {
		out = append(out, row...)
	}
	slices.SortStableFunc(out, func(a, b Candidate) int { return cmp.Compare(b.Confidence, a.Confidence) })

	logger.Debug("[Reconcile] Scored people", "people", len(profiles), "candidates", len(out))
	return out, nil
}

func blockingKeys(p genealogy.PersonProfile, n int) []string {
	var keys []string
	for _, name := range p.AllNames() {
		r := []rune(similarity.Fold(name))
		if len(r) > n {
			r = r[:n]
		}
		if len(r) == 0 {
			continue
		}
		key := string(r)
		if !slices.Contains(keys, key) {
			keys = append(keys, key)
		}
	}
	return keys
}

func shareKey(a, b []string) bool {
	for _, k := range a {
		if slices.Contains(b, k) {
			return true
		}
	}
	return false
}
