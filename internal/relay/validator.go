package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/domain"
)

// Validator checks decoded records against a field/type schema.
type Validator struct {
	schema map[string]domain.FieldKind
}

// NewValidator constructs a validator for schema.
func NewValidator(schema map[string]domain.FieldKind) *Validator {
	return &Validator{schema: schema}
}

// Validate returns the well-typed subset of record and the sorted list of
// keys that were removed: schema fields that are missing or mistyped, and
// fields the schema does not know.
func (v *Validator) Validate(record map[string]any) (map[string]any, []string) {
	clean := make(map[string]any, len(v.schema))
	var removed []string

	for key, value := range record {
		kind, known := v.schema[key]
		if !known || !matches(kind, value) {
			removed = append(removed, key)
			continue
		}
		clean[key] = value
	}
	for key := range v.schema {
		if _, ok := record[key]; !ok {
			removed = append(removed, key)
		}
	}

	sort.Strings(removed)
	return clean, removed
}

func matches(kind domain.FieldKind, value any) bool {
	switch kind {
	case domain.KindString:
		_, ok := value.(string)
		return ok
	case domain.KindBoolean:
		_, ok := value.(bool)
		return ok
	case domain.KindInteger:
		n, ok := value.(json.Number)
		if !ok {
			return false
		}
		_, err := strconv.ParseInt(n.String(), 10, 64)
		return err == nil
	case domain.KindNumber:
		_, ok := value.(json.Number)
		return ok
	default:
		return false
	}
}

// decodeObject parses body keeping numbers as their literal text.
func decodeObject(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decode: trailing data after record")
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode: record is %T, not an object", value)
	}
	return obj, nil
}
