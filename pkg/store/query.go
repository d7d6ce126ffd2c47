package store

import (
	"encoding/json"
	"reflect"
)

// Query selects documents by field value. A plain value matches by
// equality; a map value is a set of operators applied to the field:
// $eq, $ne, $in, $gt, $gte, $lt, $lte. Numeric comparisons coerce both
// sides to float64, which is how JSON numbers come back from storage.
type Query map[string]any

// Matches reports whether doc satisfies every clause of q.
func (q Query) Matches(doc map[string]any) bool {
	for field, want := range q {
		have, present := doc[field]
		if ops, isOps := want.(map[string]any); isOps {
			if !matchOps(have, present, ops) {
				return false
			}
			continue
		}
		if !present || !valueEqual(have, want) {
			return false
		}
	}
	return true
}

// SanitizeIDs validates id values referenced by q. A bare id that fails
// validation is a user fault; invalid entries inside an $in list are
// dropped silently instead.
func (q Query) SanitizeIDs() error {
	raw, ok := q["id"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case string:
		return ValidateID(v)
	case map[string]any:
		list, ok := v["$in"]
		if !ok {
			return nil
		}
		v["$in"] = keepValidIDs(list)
	}
	return nil
}

func keepValidIDs(list any) []any {
	kept := []any{}
	switch items := list.(type) {
	case []any:
		for _, item := range items {
			if s, ok := item.(string); ok && ValidateID(s) == nil {
				kept = append(kept, s)
			}
		}
	case []string:
		for _, s := range items {
			if ValidateID(s) == nil {
				kept = append(kept, s)
			}
		}
	}
	return kept
}

func matchOps(have any, present bool, ops map[string]any) bool {
	for op, arg := range ops {
		switch op {
		case "$eq":
			if !present || !valueEqual(have, arg) {
				return false
			}
		case "$ne":
			if present && valueEqual(have, arg) {
				return false
			}
		case "$in":
			if !present || !valueIn(have, arg) {
				return false
			}
		case "$gt", "$gte", "$lt", "$lte":
			a, aok := numeric(have)
			b, bok := numeric(arg)
			if !present || !aok || !bok {
				return false
			}
			if !compare(op, a, b) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func compare(op string, a, b float64) bool {
	switch op {
	case "$gt":
		return a > b
	case "$gte":
		return a >= b
	case "$lt":
		return a < b
	case "$lte":
		return a <= b
	}
	return false
}

func valueEqual(a, b any) bool {
	if af, aok := numeric(a); aok {
		bf, bok := numeric(b)
		return bok && af == bf
	}
	return reflect.DeepEqual(a, b)
}

func valueIn(have, arg any) bool {
	switch list := arg.(type) {
	case []any:
		for _, item := range list {
			if valueEqual(have, item) {
				return true
			}
		}
	case []string:
		s, ok := have.(string)
		if !ok {
			return false
		}
		for _, item := range list {
			if s == item {
				return true
			}
		}
	}
	return false
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
