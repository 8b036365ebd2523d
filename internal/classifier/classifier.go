// Package classifier turns a raw user query into a complexity, intent
// and domain fingerprint, then derives a token budget from it.
//
// Classification is pure and rule-based: no I/O, no allocation-heavy
// parsing, and a hard latency contract of well under 5ms even on
// pathological input. It never fails; unparseable input degrades to a
// default classification.
package classifier

import (
	"strings"
	"unicode"
)

// Complexity orders queries from trivial to deep. The ordering is
// meaningful: each level maps to a larger base token budget.
type Complexity int

const (
	ComplexityTrivial Complexity = iota
	ComplexitySimple
	ComplexityModerate
	ComplexityComplex
	ComplexityDeep
)

// String returns the lowercase name used in stats and logs.
func (c Complexity) String() string {
	switch c {
	case ComplexityTrivial:
		return "trivial"
	case ComplexitySimple:
		return "simple"
	case ComplexityModerate:
		return "moderate"
	case ComplexityComplex:
		return "complex"
	case ComplexityDeep:
		return "deep"
	}
	return "unknown"
}

// Intent is the surface-level purpose of a query.
type Intent string

const (
	IntentQuestion     Intent = "question"
	IntentGeneration   Intent = "generation"
	IntentAnalysis     Intent = "analysis"
	IntentDebugging    Intent = "debugging"
	IntentDiscussion   Intent = "discussion"
	IntentContinuation Intent = "continuation"
	IntentGreeting     Intent = "greeting"
)

// Classification is the fingerprint of a single query. It is a pure
// function of the query text and conversation depth; nothing here is
// persisted.
type Classification struct {
	Complexity        Complexity `json:"complexity"`
	Intent            Intent     `json:"intent"`
	Domains           []string   `json:"domains,omitempty"`
	ConversationDepth int        `json:"conversation_depth"`
	HasCodeContext    bool       `json:"has_code_context"`
	ReferencesHistory bool       `json:"references_history"`
}

// maxScanBytes caps how much of the query the classifier inspects.
// Signals past this point add nothing, and the cap keeps the latency
// contract on 100K-character adversarial input.
const maxScanBytes = 4096

// greetings are short standalone openers that classify as trivial.
var greetings = map[string]bool{
	"hi": true, "hello": true, "hey": true, "yo": true, "sup": true,
	"thanks": true, "thank you": true, "ok": true, "okay": true,
	"good morning": true, "good evening": true, "bye": true,
}

// domainKeywords maps query keywords to domain tags.
var domainKeywords = map[string]string{
	"auth": "security", "token": "security", "password": "security",
	"secret": "security", "credential": "security", "oauth": "security",
	"vulnerability": "security", "injection": "security", "xss": "security",
	"encrypt": "security", "permission": "security",
	"database": "database", "sql": "database", "query": "database",
	"migration": "database", "schema": "database", "index": "database",
	"transaction": "database", "postgres": "database", "sqlite": "database",
	"api": "api", "endpoint": "api", "rest": "api", "grpc": "api",
	"http": "api", "route": "api", "webhook": "api",
	"test": "testing", "mock": "testing", "coverage": "testing",
	"assert": "testing", "fixture": "testing",
	"deploy": "infrastructure", "docker": "infrastructure",
	"kubernetes": "infrastructure", "pipeline": "infrastructure",
	"terraform": "infrastructure", "container": "infrastructure",
	"cache": "performance", "latency": "performance", "optimize": "performance",
	"benchmark": "performance", "profiling": "performance",
	"react": "frontend", "css": "frontend", "component": "frontend",
	"render": "frontend", "dom": "frontend",
}

// historyMarkers signal that the query refers back to earlier turns.
var historyMarkers = []string{
	"earlier", "before", "previous", "you said", "you mentioned",
	"as discussed", "last time", "we talked", "again", "like before",
	"that change", "the above",
}

// codeMarkers are code-like tokens that flip HasCodeContext.
var codeMarkers = []string{
	"```", ":=", "=>", "==", "!=", "&&", "||", "();", "{}",
	"func ", "def ", "class ", "import ", "return ", "const ",
	"var ", "let ", "public ", "private ", "#include", "SELECT ",
}

// analysisVerbs suggest deep reasoning work.
var analysisVerbs = []string{
	"analyze", "analyse", "compare", "evaluate", "review", "audit",
	"investigate", "explain why", "trade-off", "tradeoff", "assess",
	"architecture", "design a", "redesign",
}

// generationVerbs suggest the user wants artifacts produced.
var generationVerbs = []string{
	"write", "create", "generate", "implement", "build", "add a",
	"scaffold", "refactor", "make a",
}

// debuggingMarkers suggest a failure investigation.
var debuggingMarkers = []string{
	"error", "bug", "fix", "crash", "broken", "fails", "failing",
	"panic", "stack trace", "stacktrace", "not working", "exception",
	"segfault", "debug",
}

// Classify fingerprints a query. It always returns a valid
// Classification and never panics, regardless of input.
func Classify(query string, conversationDepth int) Classification {
	if conversationDepth < 0 {
		conversationDepth = 0
	}

	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return Classification{
			Complexity:        ComplexityTrivial,
			Intent:            IntentGreeting,
			ConversationDepth: conversationDepth,
		}
	}

	// Inspect at most maxScanBytes, clipped to a rune boundary.
	scan := trimmed
	if len(scan) > maxScanBytes {
		cut := maxScanBytes
		for cut > 0 && !utf8Start(scan[cut]) {
			cut--
		}
		scan = scan[:cut]
	}
	lower := strings.ToLower(scan)

	c := Classification{
		ConversationDepth: conversationDepth,
		HasCodeContext:    containsAny(scan, codeMarkers),
		ReferencesHistory: containsAnyPhrase(lower, historyMarkers),
		Domains:           inferDomains(lower),
	}

	if greetings[lower] {
		c.Complexity = ComplexityTrivial
		c.Intent = IntentGreeting
		return c
	}

	c.Intent = inferIntent(lower, trimmed)
	c.Complexity = inferComplexity(lower, trimmed, c)
	return c
}

// inferIntent reads surface patterns: question marks, imperative verbs,
// debugging vocabulary.
func inferIntent(lower, original string) Intent {
	switch {
	case containsAny(lower, debuggingMarkers):
		return IntentDebugging
	case containsAny(lower, analysisVerbs):
		return IntentAnalysis
	case containsAny(lower, generationVerbs):
		return IntentGeneration
	case strings.Contains(original, "?"):
		return IntentQuestion
	case len(lower) < 25 && looksLikeContinuation(lower):
		return IntentContinuation
	default:
		return IntentDiscussion
	}
}

// looksLikeContinuation matches terse follow-ups such as "continue",
// "go on", "and then?".
func looksLikeContinuation(lower string) bool {
	for _, m := range []string{"continue", "go on", "next", "and then", "keep going", "more"} {
		if strings.HasPrefix(lower, m) {
			return true
		}
	}
	return false
}

// inferComplexity buckets the query by length, clause structure and
// signal keywords.
func inferComplexity(lower, original string, c Classification) Complexity {
	words := countWords(lower)
	clauses := 1 + strings.Count(lower, ",") + strings.Count(lower, ";") +
		strings.Count(lower, " and ") + strings.Count(lower, " then ")

	score := 0
	switch {
	case words >= 80:
		score += 3
	case words >= 30:
		score += 2
	case words >= 10:
		score++
	}
	if clauses >= 4 {
		score += 2
	} else if clauses >= 2 {
		score++
	}
	if c.HasCodeContext {
		score++
	}
	if c.Intent == IntentAnalysis {
		score += 2
	}
	if c.Intent == IntentDebugging {
		score++
	}
	if len(c.Domains) >= 2 {
		score++
	}

	switch {
	case words <= 2 && score == 0:
		return ComplexityTrivial
	case score <= 1:
		return ComplexitySimple
	case score <= 3:
		return ComplexityModerate
	case score <= 5:
		return ComplexityComplex
	default:
		return ComplexityDeep
	}
}

// inferDomains scans for known keywords and returns de-duplicated
// domain tags in first-seen order.
func inferDomains(lower string) []string {
	var domains []string
	seen := make(map[string]bool)
	for _, word := range strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if d, ok := domainKeywords[word]; ok && !seen[d] {
			seen[d] = true
			domains = append(domains, d)
		}
	}
	return domains
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// containsAnyPhrase matches markers on word boundaries, so "again"
// does not fire inside "against" or "before" inside "beforehand".
func containsAnyPhrase(s string, markers []string) bool {
	for _, m := range markers {
		if containsPhrase(s, m) {
			return true
		}
	}
	return false
}

func containsPhrase(s, phrase string) bool {
	for i := 0; ; i++ {
		j := strings.Index(s[i:], phrase)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(phrase)
		if (start == 0 || !wordByte(s[start-1])) && (end == len(s) || !wordByte(s[end])) {
			return true
		}
		i = start
	}
}

func wordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

func countWords(s string) int {
	n := 0
	inWord := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			inWord = false
		} else if !inWord {
			inWord = true
			n++
		}
	}
	return n
}

// utf8Start reports whether b can begin a UTF-8 encoded rune.
func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}
