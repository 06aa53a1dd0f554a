package genealogy

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
)

// Confidence is a score in [0, 1] that may be absent. An absent confidence
// is distinct from a zero confidence.
type Confidence struct {
	Float64 float64
	Valid   bool
}

// NewConfidence returns a present confidence, rejecting values outside [0, 1].
func NewConfidence(v float64) (Confidence, error) {
	if v < 0 || v > 1 || v != v {
		return Confidence{}, NewValidationError("confidence", fmt.Sprintf("%v is outside [0, 1]", v))
	}
	return Confidence{Float64: v, Valid: true}, nil
}

// MustConfidence is NewConfidence for constants.
func MustConfidence(v float64) Confidence {
	c, err := NewConfidence(v)
	if err != nil {
		panic(err)
	}
	return c
}

// ConfidenceFromPtr converts an optional float, validating it when present.
func ConfidenceFromPtr(v *float64) (Confidence, error) {
	if v == nil {
		return Confidence{}, nil
	}
	return NewConfidence(*v)
}

// Validate accepts an unset confidence or one within [0, 1].
func (c Confidence) Validate() error {
	if !c.Valid {
		return nil
	}
	_, err := NewConfidence(c.Float64)
	return err
}

func (c Confidence) Ptr() *float64 {
	if !c.Valid {
		return nil
	}
	v := c.Float64
	return &v
}

func (c Confidence) String() string {
	if !c.Valid {
		return "-"
	}
	return strconv.FormatFloat(c.Float64, 'f', 2, 64)
}

// Scan implements sql.Scanner.
func (c *Confidence) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*c = Confidence{}
	case float64:
		*c = Confidence{Float64: v, Valid: true}
	case float32:
		*c = Confidence{Float64: float64(v), Valid: true}
	case int64:
		*c = Confidence{Float64: float64(v), Valid: true}
	case []byte:
		f, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			return fmt.Errorf("scan confidence: %w", err)
		}
		*c = Confidence{Float64: f, Valid: true}
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("scan confidence: %w", err)
		}
		*c = Confidence{Float64: f, Valid: true}
	default:
		return fmt.Errorf("scan confidence: unsupported type %T", src)
	}
	return nil
}

// Value implements driver.Valuer.
func (c Confidence) Value() (driver.Value, error) {
	if !c.Valid {
		return nil, nil
	}
	return c.Float64, nil
}

func (c Confidence) MarshalJSON() ([]byte, error) {
	if !c.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(c.Float64)
}

func (c *Confidence) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = Confidence{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := NewConfidence(v)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
