// Package validate checks a generated response against a project's
// invariants and critical-file list after the fact. Validation only
// annotates; it never blocks delivery.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/learning"
)

const (
	// maxPatternLength caps user-supplied check patterns before the
	// ReDoS heuristic even looks at structure.
	maxPatternLength = 200

	// blastRadiusWarn is the distinct-file count above which a response
	// earns a risk warning.
	blastRadiusWarn = 10
)

// Result is the outcome of checking one response.
type Result struct {
	IsValid      bool     `json:"is_valid"`
	Violations   []string `json:"violations"`
	Warnings     []string `json:"warnings"`
	BlastRadius  int      `json:"blast_radius"`
	TouchedFiles []string `json:"touched_files"`
}

// filePathPattern matches path-like tokens in response text. Requires a
// separator plus an extension so prose like "a.m." does not count.
var filePathPattern = regexp.MustCompile(`[\w.\-~]*[/\\][\w./\\\-~]*\.\w{1,8}`)

// Validator applies invariant check patterns and critical-file checks.
type Validator struct {
	logger *zap.Logger
}

// New builds a validator. A nil logger is replaced with a no-op one.
func New(logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{logger: logger}
}

// ValidateResponse checks the response against invariant check patterns
// and the project's critical files. A matched check pattern is a
// violation; a touched critical file or a wide blast radius is a
// warning. Unsafe or malformed patterns are skipped with a log line,
// never executed.
func (v *Validator) ValidateResponse(responseText string, invariants []*learning.Learning, criticalFiles []string) Result {
	res := Result{IsValid: true}

	res.TouchedFiles = extractFilePaths(responseText)
	res.BlastRadius = len(res.TouchedFiles)

	for _, inv := range invariants {
		if inv == nil || inv.CheckPattern == "" {
			continue
		}
		if err := CheckPatternSafe(inv.CheckPattern); err != nil {
			v.logger.Warn("skipping unsafe invariant check pattern",
				zap.String("learning_id", inv.ID),
				zap.Error(err))
			continue
		}
		re, err := regexp.Compile(inv.CheckPattern)
		if err != nil {
			v.logger.Warn("skipping malformed invariant check pattern",
				zap.String("learning_id", inv.ID),
				zap.Error(err))
			continue
		}
		if re.MatchString(responseText) {
			res.IsValid = false
			res.Violations = append(res.Violations,
				fmt.Sprintf("invariant violated: %s", inv.Content))
		}
	}

	for _, critical := range criticalFiles {
		for _, touched := range res.TouchedFiles {
			if pathMatches(touched, critical) {
				res.Warnings = append(res.Warnings,
					fmt.Sprintf("touches critical file: %s", critical))
				break
			}
		}
	}

	if res.BlastRadius > blastRadiusWarn {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("wide blast radius: %d files referenced", res.BlastRadius))
	}

	return res
}

// Summarize renders a result as a short human-readable block, or ""
// when there is nothing to say.
func Summarize(res Result) string {
	if res.IsValid && len(res.Warnings) == 0 {
		return ""
	}
	var b strings.Builder
	if !res.IsValid {
		b.WriteString("Violations:\n")
		for _, v := range res.Violations {
			fmt.Fprintf(&b, "- %s\n", v)
		}
	}
	if len(res.Warnings) > 0 {
		b.WriteString("Warnings:\n")
		for _, w := range res.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func extractFilePaths(text string) []string {
	matches := filePathPattern.FindAllString(text, -1)
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		m = strings.Trim(m, ".")
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// pathMatches compares a touched path against a critical path by
// suffix, so "internal/auth/token.go" matches "auth/token.go".
func pathMatches(touched, critical string) bool {
	touched = strings.ReplaceAll(touched, "\\", "/")
	critical = strings.ReplaceAll(critical, "\\", "/")
	if touched == critical {
		return true
	}
	return strings.HasSuffix(touched, "/"+critical) || strings.HasSuffix(critical, "/"+touched)
}
