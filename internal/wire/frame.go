// Package wire encodes and decodes Nostr client-relay wire frames: JSON arrays
// whose first element is a string tag (EVENT, REQ, CLOSE, NOTICE, EOSE, OK).
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Tag identifies a frame's wire-level message type.
type Tag string

const (
	TagEvent  Tag = "EVENT"
	TagReq    Tag = "REQ"
	TagClose  Tag = "CLOSE"
	TagNotice Tag = "NOTICE"
	TagEOSE   Tag = "EOSE"
	TagOK     Tag = "OK"
)

// ErrUnknownTag is returned by Decode for well-formed but unrecognized frames.
// Callers should drop these with a warning rather than tear down the connection.
var ErrUnknownTag = errors.New("wire: unknown frame tag")

// ErrMalformed is returned when the frame is not a JSON array, has no tag, or
// has the wrong arity for its tag.
var ErrMalformed = errors.New("wire: malformed frame")

// Frame is any decoded wire message.
type Frame interface {
	FrameTag() Tag
}

// EventFrame is relay→client event delivery: ["EVENT", sub_id, event].
// SubID is empty for the client→relay publish form: ["EVENT", event].
type EventFrame struct {
	SubID   string
	RawJSON json.RawMessage // undecoded event object; the caller parses with nostrmodel
}

func (EventFrame) FrameTag() Tag { return TagEvent }

// NoticeFrame is relay→client ["NOTICE", text].
type NoticeFrame struct {
	Text string
}

func (NoticeFrame) FrameTag() Tag { return TagNotice }

// EOSEFrame is relay→client ["EOSE", sub_id].
type EOSEFrame struct {
	SubID string
}

func (EOSEFrame) FrameTag() Tag { return TagEOSE }

// OKFrame is relay→client ["OK", event_id, accepted, message?].
type OKFrame struct {
	EventID  string
	Accepted bool
	Message  string
}

func (OKFrame) FrameTag() Tag { return TagOK }

// ReqFrame is client→relay ["REQ", sub_id, filter, ...].
type ReqFrame struct {
	SubID   string
	Filters []json.RawMessage
}

func (ReqFrame) FrameTag() Tag { return TagReq }

// CloseFrame is client→relay ["CLOSE", sub_id].
type CloseFrame struct {
	SubID string
}

func (CloseFrame) FrameTag() Tag { return TagClose }

// Decode parses a single wire frame. It rejects anything that isn't a JSON
// array, has an unknown or missing tag, or has the wrong arity for its tag.
// Unknown-but-well-formed tags return ErrUnknownTag so callers can drop them
// without tearing down the connection (forward compatibility).
func Decode(raw []byte) (Frame, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(arr) == 0 {
		return nil, fmt.Errorf("%w: empty array", ErrMalformed)
	}

	var tag string
	if err := json.Unmarshal(arr[0], &tag); err != nil {
		return nil, fmt.Errorf("%w: non-string tag", ErrMalformed)
	}

	switch Tag(tag) {
	case TagEvent:
		switch len(arr) {
		case 2:
			return EventFrame{RawJSON: arr[1]}, nil
		case 3:
			var subID string
			if err := json.Unmarshal(arr[1], &subID); err != nil {
				return nil, fmt.Errorf("%w: EVENT sub_id: %v", ErrMalformed, err)
			}
			return EventFrame{SubID: subID, RawJSON: arr[2]}, nil
		default:
			return nil, fmt.Errorf("%w: EVENT arity %d", ErrMalformed, len(arr))
		}
	case TagNotice:
		if len(arr) != 2 {
			return nil, fmt.Errorf("%w: NOTICE arity %d", ErrMalformed, len(arr))
		}
		var text string
		if err := json.Unmarshal(arr[1], &text); err != nil {
			return nil, fmt.Errorf("%w: NOTICE text: %v", ErrMalformed, err)
		}
		return NoticeFrame{Text: text}, nil
	case TagEOSE:
		if len(arr) != 2 {
			return nil, fmt.Errorf("%w: EOSE arity %d", ErrMalformed, len(arr))
		}
		var subID string
		if err := json.Unmarshal(arr[1], &subID); err != nil {
			return nil, fmt.Errorf("%w: EOSE sub_id: %v", ErrMalformed, err)
		}
		return EOSEFrame{SubID: subID}, nil
	case TagOK:
		if len(arr) < 3 || len(arr) > 4 {
			return nil, fmt.Errorf("%w: OK arity %d", ErrMalformed, len(arr))
		}
		var eventID string
		var accepted bool
		if err := json.Unmarshal(arr[1], &eventID); err != nil {
			return nil, fmt.Errorf("%w: OK event_id: %v", ErrMalformed, err)
		}
		if err := json.Unmarshal(arr[2], &accepted); err != nil {
			return nil, fmt.Errorf("%w: OK accepted: %v", ErrMalformed, err)
		}
		var msg string
		if len(arr) == 4 {
			_ = json.Unmarshal(arr[3], &msg)
		}
		return OKFrame{EventID: eventID, Accepted: accepted, Message: msg}, nil
	case TagReq:
		if len(arr) < 3 {
			return nil, fmt.Errorf("%w: REQ arity %d", ErrMalformed, len(arr))
		}
		var subID string
		if err := json.Unmarshal(arr[1], &subID); err != nil {
			return nil, fmt.Errorf("%w: REQ sub_id: %v", ErrMalformed, err)
		}
		return ReqFrame{SubID: subID, Filters: append([]json.RawMessage{}, arr[2:]...)}, nil
	case TagClose:
		if len(arr) != 2 {
			return nil, fmt.Errorf("%w: CLOSE arity %d", ErrMalformed, len(arr))
		}
		var subID string
		if err := json.Unmarshal(arr[1], &subID); err != nil {
			return nil, fmt.Errorf("%w: CLOSE sub_id: %v", ErrMalformed, err)
		}
		return CloseFrame{SubID: subID}, nil
	default:
		return nil, ErrUnknownTag
	}
}

// Encode renders a frame back to its wire JSON array form.
func Encode(f Frame) ([]byte, error) {
	switch v := f.(type) {
	case EventFrame:
		if v.SubID == "" {
			return json.Marshal([]any{TagEvent, rawOrNull(v.RawJSON)})
		}
		return json.Marshal([]any{TagEvent, v.SubID, rawOrNull(v.RawJSON)})
	case NoticeFrame:
		return json.Marshal([]any{TagNotice, v.Text})
	case EOSEFrame:
		return json.Marshal([]any{TagEOSE, v.SubID})
	case OKFrame:
		if v.Message == "" {
			return json.Marshal([]any{TagOK, v.EventID, v.Accepted, ""})
		}
		return json.Marshal([]any{TagOK, v.EventID, v.Accepted, v.Message})
	case ReqFrame:
		out := make([]any, 0, 2+len(v.Filters))
		out = append(out, TagReq, v.SubID)
		for _, flt := range v.Filters {
			out = append(out, rawOrNull(flt))
		}
		return json.Marshal(out)
	case CloseFrame:
		return json.Marshal([]any{TagClose, v.SubID})
	default:
		return nil, fmt.Errorf("wire: unsupported frame type %T", f)
	}
}

func rawOrNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
