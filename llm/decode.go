package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DecodeStatus tags the outcome of decoding structured model output.
type DecodeStatus int

const (
	DecodeOK DecodeStatus = iota
	// DecodeParseError means no JSON object could be read from the output.
	DecodeParseError
	// DecodeValidationError means the JSON parsed but has the wrong shape.
	DecodeValidationError
)

func (s DecodeStatus) String() string {
	switch s {
	case DecodeOK:
		return "ok"
	case DecodeParseError:
		return "parse_error"
	case DecodeValidationError:
		return "validation_error"
	default:
		return fmt.Sprintf("DecodeStatus(%d)", int(s))
	}
}

// Decoded is the tagged result of Decode. Value is only meaningful when
// Status is DecodeOK; on failure Err explains why and Value is the zero value.
type Decoded[T any] struct {
	Status DecodeStatus
	Value  T
	Err    error
}

// OK reports whether decoding succeeded.
func (d Decoded[T]) OK() bool { return d.Status == DecodeOK }

// ErrNoJSON is returned when the output holds no JSON object at all.
var ErrNoJSON = errors.New("no JSON object found in response")

// codeBlockRe strips markdown code fences from LLM output.
var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// ExtractJSON finds the JSON object in a model response, tolerating
// markdown fences and chatter before or after it.
func ExtractJSON(raw string) (string, error) {
	if m := codeBlockRe.FindStringSubmatch(raw); len(m) > 1 {
		raw = m[1]
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrNoJSON
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1], nil
	}
	return "", ErrNoJSON
}

// Decode reads a JSON object of type T from raw model output and runs
// validate on it. It never substitutes defaults: any failure is reported
// through the returned status.
func Decode[T any](raw string, validate func(*T) error) Decoded[T] {
	var out Decoded[T]

	js, err := ExtractJSON(raw)
	if err != nil {
		out.Status = DecodeParseError
		out.Err = err
		return out
	}

	var v T
	if err := json.Unmarshal([]byte(js), &v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			out.Status = DecodeValidationError
		} else {
			out.Status = DecodeParseError
		}
		out.Err = err
		return out
	}

	if validate != nil {
		if err := validate(&v); err != nil {
			out.Status = DecodeValidationError
			out.Err = err
			return out
		}
	}

	out.Status = DecodeOK
	out.Value = v
	return out
}
