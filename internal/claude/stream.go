package claude

import (
	"bytes"
	"encoding/json"
)

// StreamEvent is a single decoded line of the agent's stream-json output.
// Only the fields the relay acts on are decoded; everything else is ignored.
type StreamEvent struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	SessionID string `json:"session_id"`
	Result    string `json:"result"`
	IsError   bool   `json:"is_error"`
}

// StreamParser turns raw stdout chunks into parsed stream events. Chunks may
// split JSON lines at arbitrary byte boundaries; the parser buffers the
// trailing partial line between calls. Lines that are not valid JSON are
// dropped rather than aborting the stream.
type StreamParser struct {
	maxBytes int64
	total    int64
	capped   bool
	partial  bytes.Buffer

	sessionID string
	result    string
	sawResult bool
}

// NewStreamParser creates a parser enforcing the given output byte ceiling.
// A ceiling of zero or less disables the limit.
func NewStreamParser(maxBytes int64) *StreamParser {
	return &StreamParser{maxBytes: maxBytes}
}

// Feed consumes the next chunk of stdout and returns the events completed by
// it. Once the cumulative input crosses the ceiling the parser stops
// accumulating: later chunks are counted but discarded unparsed, along with
// any buffered partial line.
func (p *StreamParser) Feed(chunk []byte) []StreamEvent {
	p.total += int64(len(chunk))
	if p.capped {
		return nil
	}
	if p.maxBytes > 0 && p.total > p.maxBytes {
		p.capped = true
		p.partial.Reset()
		return nil
	}

	p.partial.Write(chunk)

	var events []StreamEvent
	for {
		data := p.partial.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := make([]byte, idx)
		copy(line, data[:idx])
		p.partial.Next(idx + 1)

		if ev, ok := p.parseLine(line); ok {
			events = append(events, ev)
		}
	}
	return events
}

// Close parses any trailing partial line left when the stream ends without a
// final newline.
func (p *StreamParser) Close() []StreamEvent {
	line := bytes.TrimSpace(p.partial.Bytes())
	p.partial.Reset()
	if len(line) == 0 {
		return nil
	}
	if ev, ok := p.parseLine(line); ok {
		return []StreamEvent{ev}
	}
	return nil
}

func (p *StreamParser) parseLine(line []byte) (StreamEvent, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return StreamEvent{}, false
	}

	var ev StreamEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return StreamEvent{}, false
	}

	// Every event may carry the session ID; the last one seen wins.
	if ev.SessionID != "" {
		p.sessionID = ev.SessionID
	}
	if ev.Type == "result" {
		p.result = ev.Result
		p.sawResult = true
	}
	return ev, true
}

// SessionID returns the most recently observed session identifier, or empty
// if no event carried one.
func (p *StreamParser) SessionID() string {
	return p.sessionID
}

// ResultText returns the final response text from the terminal result event.
func (p *StreamParser) ResultText() string {
	return p.result
}

// SawResult reports whether a terminal result event was observed.
func (p *StreamParser) SawResult() bool {
	return p.sawResult
}

// Capped reports whether the byte ceiling was crossed.
func (p *StreamParser) Capped() bool {
	return p.capped
}

// BytesRead returns the total number of raw bytes consumed.
func (p *StreamParser) BytesRead() int64 {
	return p.total
}
