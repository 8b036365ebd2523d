package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/recalld/internal/learning"
)

func invariant(content, checkPattern string) *learning.Learning {
	return &learning.Learning{
		ID:           "inv-" + content[:min(8, len(content))],
		Type:         learning.TypeInvariant,
		Content:      content,
		CheckPattern: checkPattern,
	}
}

func TestValidateResponse_InvariantViolation(t *testing.T) {
	v := New(nil)
	invs := []*learning.Learning{
		invariant("never call panic in handlers", `panic\(`),
		invariant("never use fmt.Println for logging", `fmt\.Println`),
	}

	res := v.ValidateResponse("here we go: panic(err)", invs, nil)
	assert.False(t, res.IsValid)
	require.Len(t, res.Violations, 1)
	assert.Contains(t, res.Violations[0], "never call panic in handlers")

	res = v.ValidateResponse("clean response with log.Info", invs, nil)
	assert.True(t, res.IsValid)
	assert.Empty(t, res.Violations)
}

func TestValidateResponse_UnsafePatternSkippedNotExecuted(t *testing.T) {
	v := New(nil)
	invs := []*learning.Learning{
		invariant("evil", `(a+)+$`),
		invariant("too long", strings.Repeat("a", maxPatternLength+1)),
		invariant("malformed", `[unclosed`),
	}

	// The text would match the evil pattern if it were executed.
	res := v.ValidateResponse("aaaaaaaa", invs, nil)
	assert.True(t, res.IsValid)
	assert.Empty(t, res.Violations)
}

func TestValidateResponse_TouchedFilesAndBlastRadius(t *testing.T) {
	v := New(nil)

	text := "Edit internal/auth/token.go and cmd/recalld/main.go; " +
		"internal/auth/token.go again. Meet at 9 a.m. sharp."
	res := v.ValidateResponse(text, nil, nil)

	assert.ElementsMatch(t, []string{"internal/auth/token.go", "cmd/recalld/main.go"}, res.TouchedFiles)
	assert.Equal(t, 2, res.BlastRadius)
	assert.True(t, res.IsValid)
	assert.Empty(t, res.Warnings)
}

func TestValidateResponse_CriticalFileWarning(t *testing.T) {
	v := New(nil)

	res := v.ValidateResponse("change internal/auth/token.go", nil, []string{"auth/token.go"})
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "auth/token.go")
	// Warnings never invalidate.
	assert.True(t, res.IsValid)
}

func TestValidateResponse_WideBlastRadiusWarning(t *testing.T) {
	v := New(nil)

	var b strings.Builder
	for i := 0; i < blastRadiusWarn+1; i++ {
		b.WriteString("pkg/file")
		b.WriteByte(byte('a' + i))
		b.WriteString(".go ")
	}
	res := v.ValidateResponse(b.String(), nil, nil)
	assert.Equal(t, blastRadiusWarn+1, res.BlastRadius)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[len(res.Warnings)-1], "blast radius")
}

func TestCheckPatternSafe(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		wantErr error
	}{
		{"plain literal", `panic\(`, nil},
		{"simple quantifier", `foo+bar`, nil},
		{"quantified group without inner quantifier", `(foo)+`, nil},
		{"anchored alternation unquantified", `^(GET|POST) /`, nil},
		{"nested star", `(a*)*`, ErrPatternUnsafe},
		{"nested plus", `(a+)+`, ErrPatternUnsafe},
		{"counted inner repetition", `(a{2,10})+`, ErrPatternUnsafe},
		{"alternation under quantifier", `(a|aa)*`, ErrPatternUnsafe},
		{"deep nesting", `((a+))*`, ErrPatternUnsafe},
		{"escaped parens are literals", `\(a+\)+`, nil},
		{"over length cap", strings.Repeat("x", maxPatternLength+1), ErrPatternTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckPatternSafe(tt.pattern)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "", Summarize(Result{IsValid: true}))

	out := Summarize(Result{
		IsValid:    false,
		Violations: []string{"invariant violated: no panics"},
		Warnings:   []string{"touches critical file: auth/token.go"},
	})
	assert.Contains(t, out, "Violations:")
	assert.Contains(t, out, "no panics")
	assert.Contains(t, out, "Warnings:")
}
