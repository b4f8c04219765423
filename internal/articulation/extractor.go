// Package articulation pulls structured feedback units out of a chunked
// model response. The model interleaves prose with JSON objects and the
// chunk boundaries fall anywhere, so the extractor keeps a rolling buffer
// and emits each object the moment its closing brace arrives.
package articulation

import (
	"context"
	"encoding/json"
	"fmt"

	"codementor/internal/logging"
)

// ==== TYPES ====

// Unit is one extracted feedback object together with the surrounding
// raw text. RawText holds everything consumed from the stream up to and
// including the object, so concatenating RawText across units reproduces
// the stream (minus any trailing text after the last complete object).
type Unit struct {
	RawText string
	RawJSON string
	Parsed  map[string]interface{}
}

// Extractor turns a fragment stream into a unit stream. One Extractor
// serves one response; state does not reset between objects because the
// leftover prose between them belongs to the next unit.
type Extractor struct {
	buf      []byte
	objStart int  // index of the current object's opening brace, -1 outside
	depth    int  // brace depth inside the current object
	inString bool // inside a JSON string literal
	escaped  bool // previous byte was a backslash inside a string
}

// NewExtractor returns an Extractor ready to consume a fragment stream.
func NewExtractor() *Extractor {
	return &Extractor{objStart: -1}
}

// ==== STREAMING ====

// Extract consumes fragments until the channel closes and emits complete
// units in encounter order. A malformed object is fatal: the error channel
// receives the parse error and both channels close. An object still open
// when the input ends is discarded without comment, matching how models
// trail off mid-generation when interrupted.
func (e *Extractor) Extract(ctx context.Context, fragments <-chan string) (<-chan Unit, <-chan error) {
	units := make(chan Unit)
	errCh := make(chan error, 1)

	go func() {
		defer close(units)
		defer close(errCh)

		for {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case frag, ok := <-fragments:
				if !ok {
					if e.objStart >= 0 {
						logging.ArticulationDebug("discarding incomplete trailing object (%d buffered bytes)", len(e.buf)-e.objStart)
					}
					return
				}
				out, err := e.Feed(frag)
				if err != nil {
					errCh <- err
					return
				}
				for _, u := range out {
					select {
					case units <- u:
					case <-ctx.Done():
						errCh <- ctx.Err()
						return
					}
				}
			}
		}
	}()

	return units, errCh
}

// ==== SCANNING ====

// Feed appends one fragment and returns every unit completed by it.
// Scanning resumes where the previous fragment left off; brace depth and
// string state carry across the boundary so an object split between
// fragments assembles correctly.
func (e *Extractor) Feed(fragment string) ([]Unit, error) {
	start := len(e.buf)
	e.buf = append(e.buf, fragment...)

	var out []Unit
	for i := start; i < len(e.buf); i++ {
		c := e.buf[i]

		if e.objStart < 0 {
			// Prose between objects. Only an opening brace matters here;
			// quotes in prose must not flip the string state.
			if c == '{' {
				e.objStart = i
				e.depth = 1
			}
			continue
		}

		if e.escaped {
			e.escaped = false
			continue
		}
		if e.inString {
			switch c {
			case '\\':
				e.escaped = true
			case '"':
				e.inString = false
			}
			continue
		}
		switch c {
		case '"':
			e.inString = true
		case '{':
			e.depth++
		case '}':
			e.depth--
			if e.depth == 0 {
				u, err := e.complete(i)
				if err != nil {
					return nil, err
				}
				out = append(out, u)
				// The buffer restarts after the object; rescan from the top
				// of what remains.
				i = -1
			}
		}
	}
	return out, nil
}

// complete cuts the finished object ending at index end out of the buffer
// and parses it. The text before the object rides along as part of the
// unit's RawText.
func (e *Extractor) complete(end int) (Unit, error) {
	raw := string(e.buf[:end+1])
	jsonText := string(e.buf[e.objStart : end+1])

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(jsonText), &parsed); err != nil {
		return Unit{}, fmt.Errorf("malformed feedback object %q: %w", jsonText, err)
	}

	rest := make([]byte, len(e.buf)-end-1)
	copy(rest, e.buf[end+1:])
	e.buf = rest
	e.objStart = -1
	e.depth = 0
	e.inString = false
	e.escaped = false

	logging.ArticulationDebug("extracted unit (%d bytes json, %d bytes raw)", len(jsonText), len(raw))
	return Unit{RawText: raw, RawJSON: jsonText, Parsed: parsed}, nil
}
