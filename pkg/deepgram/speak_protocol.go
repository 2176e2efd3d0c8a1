package deepgram

import (
	"encoding/json"
	"fmt"
)

// SpeakClientMessage is a control message sent on a streaming synthesis
// session. It is one of SpeakText, SpeakFlush, SpeakClear or SpeakClose.
type SpeakClientMessage interface {
	speakClientMessage()
}

// SpeakText appends text to the synthesis buffer.
type SpeakText struct {
	Text       string `json:"text"`
	SequenceID *int   `json:"sequence_id,omitempty"`
}

// SpeakFlush asks the server to synthesize all buffered text.
type SpeakFlush struct{}

// SpeakClear discards buffered text.
type SpeakClear struct{}

// SpeakClose asks the server to finish pending audio and close.
type SpeakClose struct{}

func (SpeakText) speakClientMessage()  {}
func (SpeakFlush) speakClientMessage() {}
func (SpeakClear) speakClientMessage() {}
func (SpeakClose) speakClientMessage() {}

// MarshalJSON adds the message type.
func (m SpeakText) MarshalJSON() ([]byte, error) {
	type alias SpeakText
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{"Text", alias(m)})
}

// MarshalJSON adds the message type.
func (SpeakFlush) MarshalJSON() ([]byte, error) { return []byte(`{"type":"Flush"}`), nil }

// MarshalJSON adds the message type.
func (SpeakClear) MarshalJSON() ([]byte, error) { return []byte(`{"type":"Clear"}`), nil }

// MarshalJSON adds the message type.
func (SpeakClose) MarshalJSON() ([]byte, error) { return []byte(`{"type":"Close"}`), nil }

// SpeakServerMessage is a text message received on a streaming synthesis
// session: *SpeakMetadata, *SpeakFlushed, *SpeakCleared, *SpeakWarning,
// *SpeakError or *SpeakUnknown.
type SpeakServerMessage interface {
	MessageType() string
}

// SpeakMetadata describes the model serving the stream.
type SpeakMetadata struct {
	RequestID    string `json:"request_id"`
	ModelName    string `json:"model_name"`
	ModelVersion string `json:"model_version"`
	ModelUUID    string `json:"model_uuid"`
}

// SpeakFlushed acknowledges a Flush.
type SpeakFlushed struct {
	SequenceID int `json:"sequence_id"`
}

// SpeakCleared acknowledges a Clear.
type SpeakCleared struct {
	SequenceID int `json:"sequence_id"`
}

// SpeakWarning is a non-fatal notice, e.g. TEXT_LENGTH_WARNING.
type SpeakWarning struct {
	Description string `json:"description"`
	Code        string `json:"code"`
}

// SpeakError reports a stream failure.
type SpeakError struct {
	Description string `json:"description,omitempty"`
	Code        string `json:"code,omitempty"`
}

// SpeakUnknown is any message that does not match a known shape.
type SpeakUnknown struct {
	Type string
	Raw  json.RawMessage
}

func (*SpeakMetadata) MessageType() string { return "Metadata" }
func (*SpeakFlushed) MessageType() string  { return "Flushed" }
func (*SpeakCleared) MessageType() string  { return "Cleared" }
func (*SpeakWarning) MessageType() string  { return "Warning" }
func (*SpeakError) MessageType() string    { return "Error" }
func (m *SpeakUnknown) MessageType() string {
	return m.Type
}

// Err converts the message into an error.
func (m *SpeakError) Err() error {
	return &ServerError{Description: m.Description, Code: m.Code}
}

// ParseSpeakMessage interprets one text frame by the shape of its fields.
// A message whose type is known but whose required fields are missing or
// mistyped is returned as *SpeakUnknown. An error is returned only for
// frames that are not JSON objects.
func ParseSpeakMessage(data []byte) (SpeakServerMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("%w: speak message is not a JSON object", ErrProtocol)
	}
	var typ string
	if raw, ok := fields["type"]; ok {
		json.Unmarshal(raw, &typ)
	}
	unknown := &SpeakUnknown{Type: typ, Raw: json.RawMessage(append([]byte(nil), data...))}

	switch typ {
	case "Metadata":
		if !isString(fields["request_id"]) {
			return unknown, nil
		}
		var m SpeakMetadata
		if json.Unmarshal(data, &m) != nil {
			return unknown, nil
		}
		return &m, nil
	case "Flushed":
		var m SpeakFlushed
		if !isNumber(fields["sequence_id"]) || json.Unmarshal(data, &m) != nil {
			return unknown, nil
		}
		return &m, nil
	case "Cleared":
		var m SpeakCleared
		if !isNumber(fields["sequence_id"]) || json.Unmarshal(data, &m) != nil {
			return unknown, nil
		}
		return &m, nil
	case "Warning":
		var m SpeakWarning
		if !isString(fields["description"]) || json.Unmarshal(data, &m) != nil {
			return unknown, nil
		}
		return &m, nil
	case "Error":
		var m SpeakError
		if json.Unmarshal(data, &m) != nil {
			return &SpeakError{}, nil
		}
		return &m, nil
	}
	return unknown, nil
}

func isString(raw json.RawMessage) bool {
	var v any
	if raw == nil || json.Unmarshal(raw, &v) != nil {
		return false
	}
	_, ok := v.(string)
	return ok
}

func isNumber(raw json.RawMessage) bool {
	var v any
	if raw == nil || json.Unmarshal(raw, &v) != nil {
		return false
	}
	_, ok := v.(float64)
	return ok
}
