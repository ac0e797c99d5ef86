package llm

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxMessageLen is the hard cap Discord puts on message content.
const MaxMessageLen = 2000

const (
	waitingMessage = "*Waiting for response...*"
	elisionMarker  = " [...]"
)

type parseState int

const (
	stateIdle parseState = iota
	stateThinking
	stateDone
)

// Parser incrementally splits a streamed response into thoughts
// (bracketed by the model's thinking tags) and content. With no tag
// pair configured every chunk is content, verbatim.
//
// The final (thoughts, content) pair does not depend on how the text
// was split into chunks, as long as no tag itself straddles a chunk
// boundary.
type Parser struct {
	startTag string
	endTag   string

	state    parseState
	started  bool
	thoughts string
	content  string

	trimThoughts bool
	trimContent  bool
}

// NewParser builds a parser for the given tag pair. A missing start or
// end tag disables thinking extraction entirely.
func NewParser(startTag, endTag string) *Parser {
	p := &Parser{startTag: startTag, endTag: endTag}
	if startTag == "" || endTag == "" {
		p.startTag, p.endTag = "", ""
	}
	return p
}

// Append feeds the next chunk of streamed text.
func (p *Parser) Append(chunk string) {
	if chunk == "" {
		return
	}
	if p.startTag == "" || p.state == stateDone {
		p.appendContent(chunk)
		return
	}

	switch p.state {
	case stateIdle:
		i := strings.Index(chunk, p.startTag)
		if i < 0 {
			p.appendContent(chunk)
			return
		}
		p.appendContent(chunk[:i])
		p.started = true
		p.state = stateThinking
		p.trimThoughts = true
		p.Append(chunk[i+len(p.startTag):])
	case stateThinking:
		j := strings.Index(chunk, p.endTag)
		if j < 0 {
			p.appendThoughts(chunk)
			return
		}
		p.appendThoughts(chunk[:j])
		p.thoughts = strings.TrimRightFunc(p.thoughts, unicode.IsSpace)
		p.state = stateDone
		p.trimContent = true
		p.appendContent(chunk[j+len(p.endTag):])
	}
}

// appendThoughts skips the whitespace run directly after the start tag,
// even when it spans chunks, then accumulates verbatim.
func (p *Parser) appendThoughts(s string) {
	if p.trimThoughts {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		if s == "" {
			return
		}
		p.trimThoughts = false
	}
	p.thoughts += s
}

func (p *Parser) appendContent(s string) {
	if p.trimContent {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		if s == "" {
			return
		}
		p.trimContent = false
	}
	p.content += s
}

// Thoughts returns the thinking span seen so far.
func (p *Parser) Thoughts() string { return p.thoughts }

// Content returns the response body seen so far.
func (p *Parser) Content() string { return p.content }

// ThinkingInProgress reports whether a start tag was consumed without a
// matching end tag yet.
func (p *Parser) ThinkingInProgress() bool {
	return p.started && p.state != stateDone
}

// Render formats the current state for the reply message: thoughts in
// italics above the content, or a waiting note before anything arrived.
func (p *Parser) Render() string {
	switch {
	case p.thoughts != "" && p.content != "":
		return "*" + p.thoughts + "*\n\n" + p.content
	case p.content != "":
		return p.content
	case p.thoughts != "":
		return "*" + p.thoughts + "*"
	default:
		return waitingMessage
	}
}

// RenderLimited renders within the platform's length cap. Overflow cuts
// content first and marks the cut; thought text is only truncated when
// it alone exceeds the cap.
func (p *Parser) RenderLimited(limit int) string {
	full := p.Render()
	if len(full) <= limit {
		return full
	}

	if p.content != "" {
		prefix := ""
		if p.thoughts != "" {
			prefix = "*" + p.thoughts + "*\n\n"
		}
		if budget := limit - len(prefix) - len(elisionMarker); budget > 0 {
			return prefix + cutAtRune(p.content, budget) + elisionMarker
		}
	}
	budget := limit - len(elisionMarker) - 2
	return "*" + cutAtRune(p.thoughts, budget) + elisionMarker + "*"
}

// cutAtRune cuts s to at most n bytes without splitting a rune.
func cutAtRune(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
