package agent

import (
	"encoding/json"
	"errors"
	"strings"
)

// DecodeStep identifies which stage of the fallback chain produced a result.
type DecodeStep int

const (
	DecodeStrict DecodeStep = iota
	DecodeRepaired
	DecodeUnwrapped
	DecodeDefaulted
)

func (s DecodeStep) String() string {
	switch s {
	case DecodeStrict:
		return "strict"
	case DecodeRepaired:
		return "repaired"
	case DecodeUnwrapped:
		return "unwrapped"
	default:
		return "defaulted"
	}
}

// Distinct error kinds for each degraded stage of the chain. DecodeStructured
// wraps the stage it fell through to, so call sites can log what happened
// without treating any of them as fatal.
var (
	ErrRepairedParse  = errors.New("structured result parsed only after repair")
	ErrUnwrappedArray = errors.New("structured result was wrapped in an array")
	ErrDefaulted      = errors.New("structured result unparseable, defaulted to empty")
)

// DecodeStructured parses an agent's raw text into a structured mapping using
// a best-effort fallback chain: strict parse, repair pass, array unwrap, and
// finally a documented empty default. The returned error reports which
// degraded step applied (nil for a strict parse); the mapping is always
// usable.
func DecodeStructured(raw string) (map[string]any, DecodeStep, error) {
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err == nil && out != nil {
		return out, DecodeStrict, nil
	}

	repaired := repairJSON(raw)
	if err := json.Unmarshal([]byte(repaired), &out); err == nil && out != nil {
		return out, DecodeRepaired, ErrRepairedParse
	}

	var arr []map[string]any
	if err := json.Unmarshal([]byte(repaired), &arr); err == nil && len(arr) > 0 {
		return arr[0], DecodeUnwrapped, ErrUnwrappedArray
	}

	return map[string]any{}, DecodeDefaulted, ErrDefaulted
}

// repairJSON strips markdown fences and leading/trailing prose around the
// outermost JSON value.
func repairJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.IndexAny(s, "{[")
	if start == -1 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end <= start {
		return s[start:]
	}
	return s[start : end+1]
}
