package task

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cuemby/procpool/pkg/store"
	"github.com/cuemby/procpool/pkg/types"
)

// namespace builds the interpolation dictionary for one task document:
// name (the task id, or a fresh hex token when the task has none yet),
// date (today), and every document field except id. Later keys override
// earlier ones, so a field literally named "name" or "date" wins.
func namespace(doc map[string]any, id string) map[string]string {
	if id == "" {
		id = types.Hex()
	}
	ns := map[string]string{
		"name": id,
		"date": types.Today(),
	}
	for k, v := range doc {
		if k == "id" {
			continue
		}
		ns[k] = stringify(v)
	}
	return ns
}

// interpolate performs one pass of {key} substitution over s. Doubled
// braces escape to literal braces. Unknown keys and unbalanced braces
// are user faults.
func interpolate(s string, ns map[string]string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			if i+1 < len(s) && s[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(s[i+1:], '}')
			if end < 0 {
				return "", store.NewUserFault("single '{' encountered in %q", s)
			}
			key := s[i+1 : i+1+end]
			val, ok := ns[key]
			if !ok {
				return "", store.NewUserFault("unknown placeholder {%s} in %q", key, s)
			}
			b.WriteString(val)
			i += end + 1
		case '}':
			if i+1 < len(s) && s[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", store.NewUserFault("single '}' encountered in %q", s)
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String(), nil
}

// interpolateDoc substitutes placeholders in the named fields of doc,
// in place. String fields format directly, list fields element-wise,
// anything else is left alone.
func interpolateDoc(doc map[string]any, fields []string, ns map[string]string) error {
	for _, field := range fields {
		switch v := doc[field].(type) {
		case string:
			out, err := interpolate(v, ns)
			if err != nil {
				return err
			}
			doc[field] = out
		case []any:
			for i, item := range v {
				s, ok := item.(string)
				if !ok {
					continue
				}
				out, err := interpolate(s, ns)
				if err != nil {
					return err
				}
				v[i] = out
			}
		case []string:
			for i, s := range v {
				out, err := interpolate(s, ns)
				if err != nil {
					return err
				}
				v[i] = out
			}
		}
	}
	return nil
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", s)
	}
}
