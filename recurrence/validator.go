package recurrence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const inputSchemaURL = "recur://schema/recurring-event-input"

// inputSchema is the JSON Schema every recurring event Input must satisfy.
const inputSchema = `{
  "type": "object",
  "required": ["organization_id", "title", "pattern", "start_date"],
  "properties": {
    "organization_id": {"type": "string", "minLength": 1},
    "title": {"type": "string", "minLength": 1},
    "pattern": {"enum": ["ONCE", "DAILY", "WEEKLY", "MONTHLY", "YEARLY"]},
    "start_date": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
    "end_date": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
    "start_time": {"type": "string", "pattern": "^([01][0-9]|2[0-3]):[0-5][0-9]$"},
    "end_time": {"type": "string", "pattern": "^([01][0-9]|2[0-3]):[0-5][0-9]$"},
    "occurrence_limit": {"type": "integer", "minimum": 1},
    "admin_ids": {"type": "array", "items": {"type": "string"}}
  }
}`

// Validator checks recurring event inputs against the input schema and the
// date rules the materializer relies on.
type Validator struct {
	once      sync.Once
	schema    *jsonschema.Schema
	schemaErr error
}

// NewValidator creates a new input validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks in and returns its parsed Definition.
func (v *Validator) Validate(in Input) (*Definition, error) {
	compiled, err := v.compile()
	if err != nil {
		return nil, fmt.Errorf("schema compilation error: %w", err)
	}

	raw, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal input: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal input: %w", err)
	}
	if err := compiled.Validate(doc); err != nil {
		return nil, &ValidationError{Field: "input", Message: err.Error()}
	}

	def := &Definition{Input: in, Pattern: Pattern(in.Pattern)}

	def.StartDate, err = ParseDate(in.StartDate)
	if err != nil {
		return nil, &ValidationError{Field: "start_date", Message: "invalid date"}
	}

	if in.EndDate != "" {
		end, err := ParseDate(in.EndDate)
		if err != nil {
			return nil, &ValidationError{Field: "end_date", Message: "invalid date"}
		}
		if end.Before(def.StartDate) {
			return nil, &ValidationError{Field: "end_date", Message: "before start_date"}
		}
		def.EndDate = &end
	}

	if err := ValidateTimes(in.StartTime, in.EndTime); err != nil {
		return nil, err
	}

	return def, nil
}

// clockPattern matches the "HH:MM" wall-clock times of the input schema.
var clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// ValidateTimes checks an event's optional wall-clock times. Events do not
// cross midnight, so end may not precede start.
func ValidateTimes(start, end string) error {
	if start != "" && !clockPattern.MatchString(start) {
		return &ValidationError{Field: "start_time", Message: "want HH:MM"}
	}
	if end != "" && !clockPattern.MatchString(end) {
		return &ValidationError{Field: "end_time", Message: "want HH:MM"}
	}
	if start != "" && end != "" && end < start {
		return &ValidationError{Field: "end_time", Message: "before start_time"}
	}
	return nil
}

// compile returns the compiled input schema, compiling it on first use.
func (v *Validator) compile() (*jsonschema.Schema, error) {
	v.once.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(inputSchema))
		if err != nil {
			v.schemaErr = fmt.Errorf("unmarshal schema: %w", err)
			return
		}

		c := jsonschema.NewCompiler()
		if err := c.AddResource(inputSchemaURL, doc); err != nil {
			v.schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		v.schema, v.schemaErr = c.Compile(inputSchemaURL)
	})
	return v.schema, v.schemaErr
}
