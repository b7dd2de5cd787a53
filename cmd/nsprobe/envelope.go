package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var errBlankLine = errors.New("blank line")

// parseLine turns "namespace value" into an envelope. Lines starting with #
// are treated as blank.
func parseLine(line string) ([]byte, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil, errBlankLine
	}

	ns, value, _ := strings.Cut(line, " ")
	return buildEnvelope(ns, strings.TrimSpace(value))
}

// buildEnvelope encodes value as JSON when it parses as JSON and as a string
// otherwise. An empty value is sent as null.
func buildEnvelope(ns, value string) ([]byte, error) {
	if ns == "" {
		return nil, errors.New("namespace is empty")
	}

	var raw json.RawMessage
	switch {
	case value == "":
		raw = json.RawMessage("null")
	case json.Valid([]byte(value)):
		raw = json.RawMessage(value)
	default:
		quoted, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode value: %w", err)
		}
		raw = quoted
	}

	return json.Marshal(struct {
		Namespace string          `json:"namespace"`
		Value     json.RawMessage `json:"value"`
	}{ns, raw})
}
