package deepgram

import (
	"encoding/json"
)

// ListenEvent is an interpreted message from a live transcription session.
// It is one of *TranscriptEvent, *ListenErrorEvent or *ListenOtherEvent.
type ListenEvent interface {
	listenEvent()
}

// TranscriptEvent carries a non-empty transcript.
type TranscriptEvent struct {
	Transcript  string
	IsFinal     bool
	SpeechFinal bool

	// Event and TurnIndex are set by the v2 turn-based protocol.
	Event     string
	TurnIndex int

	Raw json.RawMessage
}

// ListenErrorEvent is a v2 Error message. The session ends after it.
type ListenErrorEvent struct {
	Description string
	Raw         json.RawMessage
}

// ListenOtherEvent is any other well-formed message: metadata, speech
// started, utterance end, v2 turn events without text, and so on.
type ListenOtherEvent struct {
	Type string
	Raw  json.RawMessage
}

func (*TranscriptEvent) listenEvent()  {}
func (*ListenErrorEvent) listenEvent() {}
func (*ListenOtherEvent) listenEvent() {}

const defaultStreamError = "Deepgram stream error"

type listenV1Message struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	// Channel is an object on Results but a [index, total] array on
	// SpeechStarted and UtteranceEnd.
	Channel json.RawMessage `json:"channel"`
}

type listenV1Channel struct {
	Alternatives []struct {
		Transcript string `json:"transcript"`
	} `json:"alternatives"`
}

// transcript returns the first alternative's text, or "" when the channel
// is absent or not an object.
func (m *listenV1Message) transcript() string {
	var ch listenV1Channel
	if len(m.Channel) == 0 || json.Unmarshal(m.Channel, &ch) != nil || len(ch.Alternatives) == 0 {
		return ""
	}
	return ch.Alternatives[0].Transcript
}

type listenV2Message struct {
	Type        string `json:"type"`
	Event       string `json:"event"`
	TurnIndex   int    `json:"turn_index"`
	Transcript  any    `json:"transcript"`
	Description string `json:"description"`
}

// ParseListenMessage interprets one text frame. It reports false for
// frames that are not JSON objects; callers ignore those.
func ParseListenMessage(data []byte, version APIVersion) (ListenEvent, bool) {
	raw := json.RawMessage(append([]byte(nil), data...))
	if version == ListenV2 {
		var msg listenV2Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, false
		}
		if msg.Type == "Error" {
			desc := msg.Description
			if desc == "" {
				desc = defaultStreamError
			}
			return &ListenErrorEvent{Description: desc, Raw: raw}, true
		}
		if text, ok := msg.Transcript.(string); ok && text != "" {
			return &TranscriptEvent{
				Transcript: text,
				IsFinal:    msg.Event == "EndOfTurn",
				Event:      msg.Event,
				TurnIndex:  msg.TurnIndex,
				Raw:        raw,
			}, true
		}
		return &ListenOtherEvent{Type: msg.Type, Raw: raw}, true
	}

	var msg listenV1Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, false
	}
	if text := msg.transcript(); text != "" {
		return &TranscriptEvent{
			Transcript:  text,
			IsFinal:     msg.IsFinal,
			SpeechFinal: msg.SpeechFinal,
			Raw:         raw,
		}, true
	}
	return &ListenOtherEvent{Type: msg.Type, Raw: raw}, true
}

// closeStreamMessage asks a v2 session to finish before the socket closes.
type closeStreamMessage struct {
	Type string `json:"type"`
}

var closeStream = closeStreamMessage{Type: "CloseStream"}
