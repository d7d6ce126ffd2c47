package task

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/procpool/pkg/store"
)

func TestInterpolate(t *testing.T) {
	ns := map[string]string{
		"name":     "0123456789abcdef0123456789abcdef",
		"date":     "2026-08-25",
		"priority": "100",
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no placeholders", "/var/log/procpool/out.log", "/var/log/procpool/out.log"},
		{"name and date", "/tmp/{date}/{name}.log", "/tmp/2026-08-25/0123456789abcdef0123456789abcdef.log"},
		{"field value", "nice-{priority}", "nice-100"},
		{"escaped braces", "literal {{name}}", "literal {name}"},
		{"empty string", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := interpolate(tt.input, ns)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInterpolateFaults(t *testing.T) {
	ns := map[string]string{"name": "x"}

	for _, input := range []string{"{unknown}", "un{balanced", "un}balanced", "{}"} {
		_, err := interpolate(input, ns)
		assert.Error(t, err, "input %q should fault", input)
		assert.True(t, store.IsUserFault(err))
	}
}

func TestInterpolateDocListsElementWise(t *testing.T) {
	doc := map[string]any{
		"cmd": []any{"echo", "{name}", 42},
		"log": "/tmp/{name}.log",
		"cwd": "/home/{name}",
	}
	ns := map[string]string{"name": "abc"}

	err := interpolateDoc(doc, []string{"cmd", "log"}, ns)
	assert.NoError(t, err)
	assert.Equal(t, []any{"echo", "abc", 42}, doc["cmd"])
	assert.Equal(t, "/tmp/abc.log", doc["log"])
	assert.Equal(t, "/home/{name}", doc["cwd"], "Fields outside the formattable set stay untouched")
}

func TestNamespace(t *testing.T) {
	doc := map[string]any{
		"id":       "0123456789abcdef0123456789abcdef",
		"priority": float64(100),
		"status":   "queued",
		"cwd":      nil,
	}

	ns := namespace(doc, "0123456789abcdef0123456789abcdef")
	assert.Equal(t, "0123456789abcdef0123456789abcdef", ns["name"])
	assert.Equal(t, "100", ns["priority"])
	assert.Equal(t, "queued", ns["status"])
	assert.Equal(t, "", ns["cwd"])
	assert.NotContains(t, ns, "id")
	assert.NotEmpty(t, ns["date"])

	// Without an id the name token is a fresh hex value
	ns = namespace(map[string]any{}, "")
	assert.Len(t, ns["name"], 32)
}
