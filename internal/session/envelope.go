package session

import (
	"bytes"
	"encoding/json"
	"errors"
)

var jsonNull = json.RawMessage("null")

// Envelope is the inbound wire unit. Value is passed to the handler untouched.
type Envelope struct {
	Namespace string          `json:"namespace"`
	Value     json.RawMessage `json:"value"`
}

// ParseEnvelope decodes one inbound frame. A missing value decodes as JSON null.
func ParseEnvelope(data []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Envelope{}, &ProtocolError{Frame: data, Err: errors.New("frame is not a JSON object")}
	}

	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Envelope{}, &ProtocolError{Frame: data, Err: err}
	}
	if env.Namespace == "" {
		return Envelope{}, &ProtocolError{Frame: data, Err: ErrNoNamespace}
	}
	if len(env.Value) == 0 {
		env.Value = jsonNull
	}

	return env, nil
}
