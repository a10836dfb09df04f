package transport

import (
	"encoding/json"
	"errors"
)

// Frame is the application-layer envelope carried by every transport
// message: one JSON object per frame, with Type and ReqID as the required
// top-level fields. ReqID doubles as requestId on responses.
type Frame struct {
	Type string          `json:"type"`
	ReqID string         `json:"reqId,omitempty"`
	Body  json.RawMessage `json:"-"`

	raw map[string]json.RawMessage
}

// ErrFrameMissingType is returned by ParseFrame when the envelope's "type"
// field is absent or empty.
var ErrFrameMissingType = errors.New("transport: frame missing type")

// ErrFrameTooLarge is returned by stream transports when a length-prefixed
// frame header advertises a size of zero or larger than maxFrameSize.
var ErrFrameTooLarge = errors.New("transport: frame too large")

// NewFrame builds a Frame whose body is the JSON encoding of payload.
func NewFrame(frameType, reqID string, payload interface{}) (*Frame, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Frame{Type: frameType, ReqID: reqID, Body: body}, nil
}

// Marshal serializes the frame to its wire JSON representation: the type
// and reqId envelope fields merged with the body's own fields.
func (f *Frame) Marshal() ([]byte, error) {
	merged := map[string]json.RawMessage{}
	if len(f.Body) > 0 {
		if err := json.Unmarshal(f.Body, &merged); err != nil {
			return nil, err
		}
	}

	typeBytes, err := json.Marshal(f.Type)
	if err != nil {
		return nil, err
	}
	merged["type"] = typeBytes

	if f.ReqID != "" {
		reqBytes, err := json.Marshal(f.ReqID)
		if err != nil {
			return nil, err
		}
		merged["reqId"] = reqBytes
	}

	return json.Marshal(merged)
}

// ParseFrame decodes a wire JSON frame, splitting out the type/reqId
// envelope fields from the rest of the body.
func ParseFrame(data []byte) (*Frame, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	typeField, ok := raw["type"]
	if !ok {
		return nil, ErrFrameMissingType
	}
	var frameType string
	if err := json.Unmarshal(typeField, &frameType); err != nil {
		return nil, err
	}
	if frameType == "" {
		return nil, ErrFrameMissingType
	}

	var reqID string
	if reqField, ok := raw["reqId"]; ok {
		_ = json.Unmarshal(reqField, &reqID)
	}

	delete(raw, "type")
	delete(raw, "reqId")

	body, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}

	return &Frame{Type: frameType, ReqID: reqID, Body: body, raw: raw}, nil
}

// Decode unmarshals the frame's body fields into v.
func (f *Frame) Decode(v interface{}) error {
	if len(f.Body) == 0 {
		return nil
	}
	return json.Unmarshal(f.Body, v)
}
