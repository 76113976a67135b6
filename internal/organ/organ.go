// Package organ defines the uniform contract for the organism's pluggable
// reasoning components. The core consumes only the drive field of a result;
// everything else an organ returns is opaque payload.
package organ

import (
	"context"
	"encoding/json"
	"strings"
)

// #region contract
// Input is the uniform organ invocation shape.
type Input struct {
	Axioms       map[string]string
	StateSummary string
	Context      map[string]any
}

// Result is the subset of organ output the core understands, plus the raw
// payload. Drives follow {"drives": {axis: value}, "_mode": "delta"|"target"}.
type Result struct {
	Drives map[string]float64
	Mode   string // "delta" | "target", defaults to delta
	Reply  string
	Reward float64
	Scored bool // true when the organ returned a reward field
	Raw    json.RawMessage
}

// Organ is one swappable reasoning component.
type Organ interface {
	Name() string
	Invoke(ctx context.Context, in Input) (Result, error)
}
// #endregion contract

// #region parse
// parsedPayload is the JSON surface organs may emit. Unknown fields pass
// through untouched in Raw.
type parsedPayload struct {
	Drives map[string]float64 `json:"drives"`
	Mode   string             `json:"_mode"`
	Reply  string             `json:"reply"`
	Reward *float64           `json:"reward"`
}

// ParseResult extracts the structured fields from model output. The JSON
// object may be embedded in surrounding prose; anything unparsable yields a
// neutral result whose Reply is the full text.
func ParseResult(content string) Result {
	res := Result{Mode: "delta", Raw: json.RawMessage(content)}

	obj := extractObject(content)
	if obj == "" {
		res.Reply = strings.TrimSpace(content)
		return res
	}

	var p parsedPayload
	if err := json.Unmarshal([]byte(obj), &p); err != nil {
		res.Reply = strings.TrimSpace(content)
		return res
	}

	res.Drives = p.Drives
	if p.Mode == "target" {
		res.Mode = "target"
	}
	if p.Reply != "" {
		res.Reply = p.Reply
	} else {
		res.Reply = strings.TrimSpace(content)
	}
	if p.Reward != nil {
		res.Reward = *p.Reward
		res.Scored = true
	}
	return res
}

// extractObject returns the first balanced top-level JSON object in s.
func extractObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
// #endregion parse
