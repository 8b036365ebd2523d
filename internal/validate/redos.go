package validate

import (
	"errors"
	"fmt"
	"strings"
)

// Check patterns come from users, so a hostile pattern must be rejected
// before it ever compiles. Go's RE2 engine is not vulnerable to
// catastrophic backtracking, but the same patterns get handed to
// downstream tools that are, so the structural gate stays.
var (
	ErrPatternTooLong = errors.New("check pattern exceeds length cap")
	ErrPatternUnsafe  = errors.New("check pattern has nested or overlapping quantifiers")
)

// CheckPatternSafe applies the ReDoS-risk heuristic: a hard length cap
// and rejection of nested quantifier constructs like (a+)+ or (a*)*
// and overlapping alternation under a quantifier like (a|a)*.
func CheckPatternSafe(pattern string) error {
	if len(pattern) > maxPatternLength {
		return fmt.Errorf("%w: %d > %d", ErrPatternTooLong, len(pattern), maxPatternLength)
	}
	if hasNestedQuantifier(pattern) {
		return ErrPatternUnsafe
	}
	return nil
}

func isQuantifier(c byte) bool {
	return c == '*' || c == '+' || c == '{'
}

// hasNestedQuantifier scans for a quantified group whose body itself
// contains a quantifier or an alternation, the shapes behind
// exponential backtracking.
func hasNestedQuantifier(pattern string) bool {
	depth := 0
	// Per open group: whether a quantifier or alternation appeared inside.
	var quantInside [64]bool
	var altInside [64]bool

	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '\\':
			i++ // skip escaped char
		case '(':
			if depth < len(quantInside)-1 {
				depth++
				quantInside[depth] = false
				altInside[depth] = false
			}
		case '|':
			if depth > 0 {
				altInside[depth] = true
			}
		case '*', '+':
			if depth > 0 {
				quantInside[depth] = true
			}
		case '{':
			// Counted repetition counts as a quantifier when it closes.
			if depth > 0 && strings.IndexByte(pattern[i:], '}') >= 0 {
				quantInside[depth] = true
			}
		case ')':
			if depth == 0 {
				continue
			}
			risky := quantInside[depth] || altInside[depth]
			// Propagate so (( a+ ))* is still caught.
			if depth > 1 {
				quantInside[depth-1] = quantInside[depth-1] || quantInside[depth]
				altInside[depth-1] = altInside[depth-1] || altInside[depth]
			}
			depth--
			// Is the closed group quantified?
			if risky && i+1 < len(pattern) && isQuantifier(pattern[i+1]) {
				return true
			}
		}
	}
	return false
}
