package compiler

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/learning"
	"github.com/fyrsmithlabs/recalld/internal/llm"
)

const dnaSummaryPrompt = `You compress a project's engineering memory into a "DNA summary" for an AI coding assistant with a very small context window.

Rules:
- Write in second person ("You must...", "You prefer...").
- State invariants first; they are non-negotiable rules.
- At most 300 tokens.
- Dense prose. No bullet points, no headers, no preamble.
- Preserve every concrete name, path, command and threshold exactly.`

const clusterSummaryPrompt = `You compress a cluster of related engineering learnings from one domain into a short paragraph for an AI coding assistant.

Rules:
- Dense prose, at most 120 tokens.
- Preserve every concrete name, path, command and threshold exactly.
- No bullet points, no preamble.`

// compileDNASummary produces the tier-1 text. With three or fewer items
// or no completer, the direct format is already tight enough; otherwise
// the LLM compresses, with the direct format as failure fallback.
func (c *Compiler) compileDNASummary(ctx context.Context, items []*learning.Learning) (text, model string) {
	direct := formatDirect(items)
	if len(items) <= directFormatMax || !c.completer.Available() {
		return direct, fallbackModel
	}

	out, err := c.completer.Complete(ctx, dnaSummaryPrompt, []llm.Message{
		{Role: "user", Content: direct},
	})
	if err != nil || strings.TrimSpace(out) == "" {
		c.logger.Warn("dna summary compression failed, using direct format", zap.Error(err))
		return direct, fallbackModel
	}
	return strings.TrimSpace(out), c.completer.Model()
}

// compileFieldGuide produces the tier-2 text: every invariant verbatim,
// patterns and decisions clustered by domain (large clusters summarized
// by the LLM), then capped flat lists of golden paths and antipatterns.
func (c *Compiler) compileFieldGuide(ctx context.Context, items []*learning.Learning) (text, model string) {
	var invariants, goldenPaths, antipatterns []*learning.Learning
	clusters := map[string][]*learning.Learning{}

	for _, l := range items {
		switch l.Type {
		case learning.TypeInvariant:
			invariants = append(invariants, l)
		case learning.TypeGoldenPath:
			goldenPaths = append(goldenPaths, l)
		case learning.TypeAntipattern:
			antipatterns = append(antipatterns, l)
		case learning.TypePattern, learning.TypeDecision:
			clusters[primaryDomain(l)] = append(clusters[primaryDomain(l)], l)
		}
	}

	model = fallbackModel
	var b strings.Builder

	if len(invariants) > 0 {
		b.WriteString("INVARIANTS:\n")
		for _, l := range invariants {
			fmt.Fprintf(&b, "- %s\n", l.Content)
		}
	}

	for _, domain := range sortedKeys(clusters) {
		group := clusters[domain]
		fmt.Fprintf(&b, "\n%s:\n", strings.ToUpper(domain))

		summary, ok := c.summarizeCluster(ctx, domain, group)
		if ok {
			model = c.completer.Model()
			b.WriteString(summary)
			b.WriteString("\n")
			continue
		}
		for _, l := range group {
			fmt.Fprintf(&b, "- %s\n", l.Content)
		}
	}

	writeCapped := func(header string, group []*learning.Learning, limit int) {
		if len(group) == 0 {
			return
		}
		if len(group) > limit {
			group = group[:limit]
		}
		fmt.Fprintf(&b, "\n%s:\n", header)
		for _, l := range group {
			fmt.Fprintf(&b, "- %s\n", l.Content)
		}
	}
	writeCapped("GOLDEN PATHS", goldenPaths, maxGoldenPaths)
	writeCapped("AVOID", antipatterns, maxAntipatterns)

	return strings.TrimRight(b.String(), "\n"), model
}

// summarizeCluster compresses clusters above the size threshold. Small
// clusters and any LLM failure report ok=false so the caller lists the
// items instead.
func (c *Compiler) summarizeCluster(ctx context.Context, domain string, group []*learning.Learning) (string, bool) {
	if len(group) <= clusterSummaryMin || !c.completer.Available() {
		return "", false
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Domain: %s\n\n", domain)
	for _, l := range group {
		fmt.Fprintf(&prompt, "- [%s] %s\n", l.Type, l.Content)
	}

	out, err := c.completer.Complete(ctx, clusterSummaryPrompt, []llm.Message{
		{Role: "user", Content: prompt.String()},
	})
	if err != nil || strings.TrimSpace(out) == "" {
		c.logger.Warn("cluster summary failed, listing items",
			zap.String("domain", domain),
			zap.Int("items", len(group)),
			zap.Error(err))
		return "", false
	}
	return strings.TrimSpace(out), true
}

func primaryDomain(l *learning.Learning) string {
	if len(l.Domains) > 0 && l.Domains[0] != "" {
		return l.Domains[0]
	}
	return "general"
}

func sortedKeys(m map[string][]*learning.Learning) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
