// Package similarity scores how likely two person records describe the
// same individual, from name, birth and death evidence.
package similarity

import (
	"fmt"
	"strings"

	"github.com/kinfolk-ai/kinfolk/pkg/genealogy"
)

const (
	MetricIndel       = "indel"
	MetricLevenshtein = "levenshtein"
)

// Config holds the thresholds and string metric used by a Scorer.
type Config struct {
	// NameThreshold gates candidacy: no name pair at or above it, no candidate.
	NameThreshold  float64
	PlaceThreshold float64
	// PlaceWeight scales the place ratio into the birth place signal.
	PlaceWeight float64
	Metric      string
}

// DefaultConfig returns the thresholds the reconciler ships with.
func DefaultConfig() Config {
	return Config{
		NameThreshold:  0.85,
		PlaceThreshold: 0.8,
		PlaceWeight:    0.8,
		Metric:         MetricIndel,
	}
}

// Signal is one piece of evidence and the weight it contributed.
type Signal struct {
	Label  string  `json:"label"`
	Weight float64 `json:"weight"`
}

// Result is the outcome of scoring one pair of people. Confidence is
// capped at 1.
type Result struct {
	Signals    []Signal `json:"signals"`
	Veto       bool     `json:"veto"`
	Confidence float64  `json:"confidence"`
}

// Reasons returns the signal labels in evaluation order.
func (r Result) Reasons() []string {
	out := make([]string, len(r.Signals))
	for i, s := range r.Signals {
		out[i] = s.Label
	}
	return out
}

// Scorer compares person profiles. It is immutable and safe for
// concurrent use.
type Scorer struct {
	cfg   Config
	ratio RatioFunc
}

// NewScorer validates cfg. An empty Metric selects the indel ratio.
func NewScorer(cfg Config) (*Scorer, error) {
	for field, v := range map[string]float64{
		"name_threshold":  cfg.NameThreshold,
		"place_threshold": cfg.PlaceThreshold,
		"place_weight":    cfg.PlaceWeight,
	} {
		if v < 0 || v > 1 {
			return nil, genealogy.NewValidationError(field, fmt.Sprintf("%v is outside [0, 1]", v))
		}
	}

	s := &Scorer{cfg: cfg}
	switch strings.ToLower(cfg.Metric) {
	case "", MetricIndel:
		s.ratio = IndelRatio
	case MetricLevenshtein:
		s.ratio = LevenshteinRatio
	default:
		return nil, genealogy.NewValidationError("metric", fmt.Sprintf("unknown metric %q", cfg.Metric))
	}
	return s, nil
}

// Config returns the configuration the scorer was built with.
func (s *Scorer) Config() Config {
	return s.cfg
}

// Ratio compares two raw strings with the configured metric after Fold.
func (s *Scorer) Ratio(a, b string) float64 {
	return s.ratio(Fold(a), Fold(b))
}

// Score compares two profiles. ok is false when no pair of names reaches the
// name threshold; the pair is then not a candidate at all.
func (s *Scorer) Score(a, b genealogy.PersonProfile) (Result, bool) {
	var res Result

	primary := s.Ratio(a.PrimaryName, b.PrimaryName)
	if primary >= s.cfg.NameThreshold {
		res.Signals = append(res.Signals, Signal{
			Label:  fmt.Sprintf("name match: %.2f", primary),
			Weight: primary,
		})
	} else {
		best := s.bestNameRatio(a.AllNames(), b.AllNames())
		if best < s.cfg.NameThreshold {
			return Result{}, false
		}
		res.Signals = append(res.Signals, Signal{
			Label:  fmt.Sprintf("name variant match: %.2f", best),
			Weight: best,
		})
	}

	if a.Birth != nil && b.Birth != nil {
		da, db := eventDate(a.Birth), eventDate(b.Birth)
		if da != "" && db != "" {
			if da == db {
				res.Signals = append(res.Signals, Signal{Label: "same birth date", Weight: 1.0})
			} else {
				res.Signals = append(res.Signals, Signal{Label: "different birth dates", Weight: 0.0})
				res.Veto = true
			}
		}

		pa, pb := genealogy.Deref(a.Birth.Place), genealogy.Deref(b.Birth.Place)
		if strings.TrimSpace(pa) != "" && strings.TrimSpace(pb) != "" {
			place := s.Ratio(pa, pb)
			if place >= s.cfg.PlaceThreshold {
				res.Signals = append(res.Signals, Signal{
					Label:  "similar birth place",
					Weight: place * s.cfg.PlaceWeight,
				})
			}
		}
	}

	if a.Death != nil && b.Death != nil {
		da, db := eventDate(a.Death), eventDate(b.Death)
		if da != "" && da == db {
			res.Signals = append(res.Signals, Signal{Label: "same death date", Weight: 1.0})
		}
	}

	sum := 0.0
	for _, sig := range res.Signals {
		sum += sig.Weight
	}
	res.Confidence = sum / float64(len(res.Signals))
	return res, true
}

func (s *Scorer) bestNameRatio(as, bs []string) float64 {
	best := 0.0
	for _, x := range as {
		fx := Fold(x)
		for _, y := range bs {
			if r := s.ratio(fx, Fold(y)); r > best {
				best = r
			}
		}
	}
	return best
}

// eventDate folds the date like a name, so "3 MAR 1850" and "3 Mar  1850"
// are the same date. No calendar parsing is attempted.
func eventDate(e *genealogy.Event) string {
	return Fold(genealogy.Deref(e.Date))
}
