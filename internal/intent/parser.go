package intent

import (
	"sort"
	"strings"

	"github.com/wasilibs/go-re2"
)

// DirectiveType names a tagged directive form the agent can embed in its
// output.
type DirectiveType string

const (
	DirectiveRemember   DirectiveType = "remember"
	DirectiveGoal       DirectiveType = "goal"
	DirectiveDone       DirectiveType = "done"
	DirectiveForget     DirectiveType = "forget"
	DirectiveCron       DirectiveType = "cron"
	DirectiveVoiceReply DirectiveType = "voice_reply"
	DirectiveMilestone  DirectiveType = "milestone"
)

// Directive is one parsed tag, before any policy is applied.
type Directive struct {
	Type    DirectiveType
	Content string
	// Schedule and Prompt are set for cron directives only.
	Schedule string
	Prompt   string
}

// Tag patterns are matched against raw LLM prose, so they are anchored on
// the bracket delimiters rather than line structure and compiled with re2
// for linear-time matching on untrusted input.
var tagPatterns = []struct {
	typ     DirectiveType
	pattern *re2.Regexp
}{
	{DirectiveRemember, re2.MustCompile(`\[REMEMBER:\s*([^\]]+?)\s*\]`)},
	{DirectiveGoal, re2.MustCompile(`\[GOAL:\s*([^\]]+?)\s*\]`)},
	{DirectiveDone, re2.MustCompile(`\[DONE:\s*([^\]]+?)\s*\]`)},
	{DirectiveForget, re2.MustCompile(`\[FORGET:\s*([^\]]+?)\s*\]`)},
	{DirectiveCron, re2.MustCompile(`\[CRON:\s*([^|\]]+?)\s*\|\s*([^\]]+?)\s*\]`)},
	{DirectiveVoiceReply, re2.MustCompile(`\[VOICE_REPLY\]`)},
	{DirectiveMilestone, re2.MustCompile(`\[MILESTONE:\s*([^\]]+?)\s*\]`)},
}

type tagMatch struct {
	start, end int
	directive  Directive
}

// Parse extracts every directive tag from text and returns the directives in
// the order they appear plus the text with all tags stripped. Stripping is
// unconditional: a tag that later fails policy must still never reach the
// human-facing output.
func Parse(text string) ([]Directive, string) {
	var matches []tagMatch
	for _, tp := range tagPatterns {
		for _, loc := range tp.pattern.FindAllStringSubmatchIndex(text, -1) {
			d := Directive{Type: tp.typ}
			switch tp.typ {
			case DirectiveCron:
				d.Schedule = strings.Trim(text[loc[2]:loc[3]], `" `)
				d.Prompt = strings.TrimSpace(text[loc[4]:loc[5]])
				d.Content = d.Schedule + " | " + d.Prompt
			case DirectiveVoiceReply:
			default:
				d.Content = strings.Trim(text[loc[2]:loc[3]], `" `)
			}
			matches = append(matches, tagMatch{start: loc[0], end: loc[1], directive: d})
		}
	}

	if len(matches) == 0 {
		return nil, strings.TrimSpace(text)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].start < matches[j].start })

	directives := make([]Directive, 0, len(matches))
	var cleaned strings.Builder
	prev := 0
	for _, m := range matches {
		directives = append(directives, m.directive)
		cleaned.WriteString(text[prev:m.start])
		prev = m.end
	}
	cleaned.WriteString(text[prev:])

	return directives, tidyWhitespace(cleaned.String())
}

// tidyWhitespace collapses the gaps stripped tags leave behind.
func tidyWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
