package translator

import (
	"regexp"
	"strings"
)

const thinkingBufferLimit = 3000

// transitionPhrases mark where a chain-of-thought preamble ends and the
// user-visible answer begins. Kept as data, not code — model-specific and
// expected to need updates as new models are onboarded.
var transitionPhrases = []*regexp.Regexp{
	regexp.MustCompile(`(?i)let me provide`),
	regexp.MustCompile(`(?i)here'?s my recommendation`),
	regexp.MustCompile(`(?i)here'?s (the|my|a) (answer|response|solution)`),
	regexp.MustCompile(`(?i)^#{1,6}\s+\S`),   // markdown section header
	regexp.MustCompile(`(?i)^\s*(\d+[.)]|[-*])\s+\S`), // enumerated list start
}

// selfNarrationPrefixes are line prefixes recognized as leftover
// chain-of-thought narration once the main stripping pass has run.
var selfNarrationPrefixes = []string{
	"the user is asking",
	"the user wants",
	"i need to",
	"let me think",
	"first, i",
	"okay, the user",
}

// reasoningModelPattern matches model ids known to emit chain-of-thought
// preambles, driving whether streaming-mode stripping engages at all.
var reasoningModelPattern = regexp.MustCompile(`(?i)(deepseek-r1|qwq|o1|r1-|reasoning)`)

// IsReasoningModel reports whether model is known to emit a thinking
// preamble, gating the streaming-mode buffering heuristic.
func IsReasoningModel(model string) bool {
	return reasoningModelPattern.MatchString(model)
}

// StripThinkingBuffered implements the buffered-mode rule: if text is empty
// and reasoningText is non-empty, use reasoningText with the transition
// filter applied; otherwise return text unchanged (after the line-level
// fallback).
func StripThinkingBuffered(text, reasoningText string) string {
	if text == "" && reasoningText != "" {
		return applyTransitionFilter(reasoningText)
	}
	return stripSelfNarrationLines(text)
}

func applyTransitionFilter(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		for _, p := range transitionPhrases {
			if loc := p.FindStringIndex(line); loc != nil {
				rest := strings.Join(lines[i+1:], "\n")
				if remainder := sentenceRemainderAfter(line, loc[1]); remainder != "" {
					if rest != "" {
						return strings.TrimSpace(remainder + "\n" + rest)
					}
					return strings.TrimSpace(remainder)
				}
				return strings.TrimSpace(rest)
			}
		}
	}
	return stripSelfNarrationLines(s)
}

// sentenceRemainderAfter returns the text following the first
// sentence-terminating punctuation (. ! ?) at or after pos in line, dropping
// the whole transition sentence rather than just the matched phrase within
// it. Returns "" if no terminator follows pos.
func sentenceRemainderAfter(line string, pos int) string {
	for i := pos; i < len(line); i++ {
		switch line[i] {
		case '.', '!', '?':
			return strings.TrimSpace(line[i+1:])
		}
	}
	return ""
}

func stripSelfNarrationLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		lower := strings.ToLower(strings.TrimSpace(line))
		narrated := false
		for _, prefix := range selfNarrationPrefixes {
			if strings.HasPrefix(lower, prefix) {
				narrated = true
				break
			}
		}
		if !narrated {
			out = append(out, line)
		}
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// thinkingBuffer accumulates streaming deltas for a reasoning model until a
// transition phrase is seen or the buffer exceeds thinkingBufferLimit.
type thinkingBuffer struct {
	buf strings.Builder
}

// feed appends a delta and reports whether the transition point was found,
// returning the post-transition text to emit if so.
func (t *thinkingBuffer) feed(delta string) (emit string, found bool) {
	t.buf.WriteString(delta)
	content := t.buf.String()

	for _, p := range transitionPhrases {
		if loc := p.FindStringIndex(content); loc != nil {
			if remainder := sentenceRemainderAfter(content, loc[1]); remainder != "" {
				return remainder, true
			}
		}
	}
	if t.buf.Len() > thinkingBufferLimit {
		return strings.TrimSpace(content), true
	}
	return "", false
}
