// Package command turns raw request bodies into typed, already-valid
// commands. Rules are checked in a fixed order and the first failure is
// reported; once a command exists it is never validated again.
package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// Field names on the wire
const (
	FieldPoolID     = "poolId"
	FieldPoolValues = "poolValues"
	FieldPercentile = "percentile"
)

// Validation messages, one per rule
const (
	MsgNotObject        = "Request body must be a JSON object"
	MsgUpdateFields     = "Pool must contain both 'poolId' and 'poolValues' and only contain this values"
	MsgQueryFields      = "Query must contain both 'poolId' and 'percentile' and only contain this values"
	MsgPoolIDInteger    = "'poolId' must be an integer"
	MsgValuesList       = "'poolValues' must be a list"
	MsgValuesNonEmpty   = "Number of elements in 'poolValues' must be greater than 0"
	MsgValuesReal       = "All elements of 'poolValues' must be real number"
	MsgPercentileReal   = "'percentile' must be a real number"
	MsgPercentileBounds = "Percentiles must be in the range [0, 100]"
)

// validate is shared by every command; validator.Validate caches struct
// metadata and is safe for concurrent use.
var validate = validator.New()

// ValidationError describes the first rule a command broke.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(msg string) error { return &ValidationError{Message: msg} }

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// Update appends Values to the pool Key, creating it when absent.
type Update struct {
	Values []float64 `json:"poolValues" validate:"required,min=1"`
	Key    int64     `json:"poolId"`
}

// Query asks for the Percentile of pool Key.
type Query struct {
	Key        int64   `json:"poolId"`
	Percentile float64 `json:"percentile" validate:"gte=0,lte=100"`
}

// Validate checks an Update built in Go rather than parsed from JSON.
func (u Update) Validate() error {
	if err := validate.Struct(u); err != nil {
		return invalid(MsgValuesNonEmpty)
	}
	return nil
}

// Validate checks a Query built in Go rather than parsed from JSON.
func (q Query) Validate() error {
	if err := validate.Struct(q); err != nil {
		return invalid(MsgPercentileBounds)
	}
	return nil
}

// ParseUpdate validates an update body. Order: field set, poolId integer,
// poolValues list, non-empty, every element numeric.
func ParseUpdate(body []byte) (Update, error) {
	fields, err := object(body, MsgUpdateFields, FieldPoolID, FieldPoolValues)
	if err != nil {
		return Update{}, err
	}
	key, ok := integer(fields[FieldPoolID])
	if !ok {
		return Update{}, invalid(MsgPoolIDInteger)
	}

	var raw []json.RawMessage
	if kind(fields[FieldPoolValues]) != '[' || json.Unmarshal(fields[FieldPoolValues], &raw) != nil {
		return Update{}, invalid(MsgValuesList)
	}
	if validate.Var(raw, "min=1") != nil {
		return Update{}, invalid(MsgValuesNonEmpty)
	}

	values := make([]float64, len(raw))
	for i, elem := range raw {
		v, ok := number(elem)
		if !ok {
			return Update{}, invalid(MsgValuesReal)
		}
		values[i] = v
	}
	return Update{Key: key, Values: values}, nil
}

// ParseQuery validates a query body. Order: field set, poolId integer,
// percentile numeric, percentile within [0, 100].
func ParseQuery(body []byte) (Query, error) {
	fields, err := object(body, MsgQueryFields, FieldPoolID, FieldPercentile)
	if err != nil {
		return Query{}, err
	}
	key, ok := integer(fields[FieldPoolID])
	if !ok {
		return Query{}, invalid(MsgPoolIDInteger)
	}
	p, ok := number(fields[FieldPercentile])
	if !ok {
		return Query{}, invalid(MsgPercentileReal)
	}
	if validate.Var(p, "gte=0,lte=100") != nil {
		return Query{}, invalid(MsgPercentileBounds)
	}
	return Query{Key: key, Percentile: p}, nil
}

// object decodes body as a JSON object whose keys are exactly want.
func object(body []byte, fieldsMsg string, want ...string) (map[string]json.RawMessage, error) {
	if kind(body) != '{' {
		return nil, invalid(MsgNotObject)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, invalid(MsgNotObject)
	}
	if len(fields) != len(want) {
		return nil, invalid(fieldsMsg)
	}
	for _, name := range want {
		if _, ok := fields[name]; !ok {
			return nil, invalid(fieldsMsg)
		}
	}
	return fields, nil
}

// kind returns the first non-space byte of a JSON value.
func kind(raw []byte) byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}
	return raw[0]
}

// integer accepts a JSON number written without fraction or exponent that
// fits in an int64.
func integer(raw json.RawMessage) (int64, bool) {
	lit := string(bytes.TrimSpace(raw))
	if !isNumber(lit) {
		return 0, false
	}
	n, err := strconv.ParseInt(lit, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// number accepts any JSON number. Booleans, strings, null, arrays and objects
// are rejected.
func number(raw json.RawMessage) (float64, bool) {
	lit := string(bytes.TrimSpace(raw))
	if !isNumber(lit) {
		return 0, false
	}
	v, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func isNumber(lit string) bool {
	if lit == "" {
		return false
	}
	c := lit[0]
	return c == '-' || (c >= '0' && c <= '9')
}
