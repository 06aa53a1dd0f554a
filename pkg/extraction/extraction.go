// Package extraction defines the structured output the external extractor
// produces for one document page, and the lenient parser that accepts it.
package extraction

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator"
	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

type Person struct {
	PrimaryName  string   `json:"primary_name" validate:"required" jsonschema:"description=Most complete form of the name as written"`
	NameVariants []string `json:"name_variants" validate:"dive,required" jsonschema:"description=Other spellings or forms of the name"`
	Confidence   float64  `json:"confidence" validate:"gte=0,lte=1" jsonschema:"minimum=0,maximum=1"`
	Notes        *string  `json:"notes,omitempty"`
}

type Event struct {
	PersonName  string  `json:"person_name" validate:"required"`
	EventType   string  `json:"event_type" validate:"required" jsonschema:"description=birth death marriage baptism burial residence or other"`
	Date        *string `json:"date,omitempty" jsonschema:"description=Date as written in the source"`
	Place       *string `json:"place,omitempty"`
	Description *string `json:"description,omitempty"`
	Confidence  float64 `json:"confidence" validate:"gte=0,lte=1" jsonschema:"minimum=0,maximum=1"`
}

type Relationship struct {
	Person1          string  `json:"person1" validate:"required"`
	Person2          string  `json:"person2" validate:"required"`
	RelationshipType string  `json:"relationship_type" validate:"required" jsonschema:"description=parent (person1 is the child of person2) spouse or sibling"`
	Confidence       float64 `json:"confidence" validate:"gte=0,lte=1" jsonschema:"minimum=0,maximum=1"`
	Notes            *string `json:"notes,omitempty"`
}

// Result is everything extracted from one page.
type Result struct {
	People        []Person       `json:"people" validate:"dive"`
	Events        []Event        `json:"events" validate:"dive"`
	Relationships []Relationship `json:"relationships" validate:"dive"`
}

var validate = validator.New()

// Validate checks required fields and confidence ranges.
func (r Result) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid extraction result: %w", err)
	}
	return nil
}

// Fingerprint identifies a result by content. Redelivering the same result
// for a page yields the same fingerprint.
func (r Result) Fingerprint() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Parse decodes extractor output. It accepts plain JSON, JSON double-encoded
// as a string, and malformed JSON that jsonrepair can fix, then validates.
func Parse(input string) (Result, error) {
	var r Result
	if err := unmarshalFlexible(input, &r); err != nil {
		return Result{}, err
	}
	if err := r.Validate(); err != nil {
		return Result{}, err
	}
	return r, nil
}

// Schema returns the JSON schema extractors are asked to produce.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return reflector.ReflectFromType(reflect.TypeOf(Result{}))
}

func stripDuplicateLeadingBrace(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") {
		rest := strings.TrimSpace(s[1:])
		if strings.HasPrefix(rest, "{") {
			return rest
		}
	}
	return s
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func unmarshalFlexible(input string, out any) error {
	input = stripCodeFence(input)

	if err := json.Unmarshal([]byte(input), out); err == nil {
		return nil
	}

	var asString string
	if err := json.Unmarshal([]byte(input), &asString); err == nil {
		asString = strings.TrimSpace(asString)
		if err := json.Unmarshal([]byte(asString), out); err == nil {
			return nil
		}
		input = asString
	}

	input = stripDuplicateLeadingBrace(input)
	repaired, err := jsonrepair.JSONRepair(input)
	if err != nil {
		return fmt.Errorf("json repair failed: %w", err)
	}

	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("unmarshal failed after repair: %w", err)
	}
	return nil
}
