package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/san-kum/simbridge/internal/bridge"
	"github.com/san-kum/simbridge/internal/layout"
)

// A frame is a little-endian uint32 header length, the JSON envelope, then the
// carried buffer (if any) as little-endian float32 values.
type envelope struct {
	Tag  string          `json:"m"`
	Body json.RawMessage `json:"o,omitempty"`
}

const headerPrefix = 4

func encode(tag string, v any, buf *layout.Buffer) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, &bridge.ProtocolError{Tag: tag, Wrapped: err}
	}
	header, err := json.Marshal(envelope{Tag: tag, Body: body})
	if err != nil {
		return nil, &bridge.ProtocolError{Tag: tag, Wrapped: err}
	}

	var data []float32
	if buf != nil {
		data = buf.Data()
	}
	frame := make([]byte, headerPrefix+len(header)+4*len(data))
	binary.LittleEndian.PutUint32(frame, uint32(len(header)))
	copy(frame[headerPrefix:], header)
	payload := frame[headerPrefix+len(header):]
	for i, f := range data {
		binary.LittleEndian.PutUint32(payload[4*i:], math.Float32bits(f))
	}
	return frame, nil
}

func split(frame []byte) (envelope, []float32, error) {
	var env envelope
	if len(frame) < headerPrefix {
		return env, nil, fmt.Errorf("short frame (%d bytes)", len(frame))
	}
	n := int(binary.LittleEndian.Uint32(frame))
	if n > len(frame)-headerPrefix {
		return env, nil, fmt.Errorf("header length %d exceeds frame", n)
	}
	if err := json.Unmarshal(frame[headerPrefix:headerPrefix+n], &env); err != nil {
		return env, nil, err
	}
	payload := frame[headerPrefix+n:]
	if len(payload)%4 != 0 {
		return env, nil, fmt.Errorf("payload of %d bytes is not float32 aligned", len(payload))
	}
	if len(payload) == 0 {
		return env, nil, nil
	}
	data := make([]float32, len(payload)/4)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[4*i:]))
	}
	return env, data, nil
}

// EncodeMessage serializes a message, including any carried buffer contents.
func EncodeMessage(m Message) ([]byte, error) {
	return encode(m.Tag(), m, CarriedBuffer(m))
}

// EncodeEvent serializes an event, including any carried buffer contents.
func EncodeEvent(e Event) ([]byte, error) {
	return encode(e.Tag(), e, CarriedBuffer(e))
}

func decodeInto[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	err := json.Unmarshal(raw, &v)
	return v, err
}

func messageDecoder[T Message](raw json.RawMessage) (Message, error) {
	return decodeInto[T](raw)
}

func eventDecoder[T Event](raw json.RawMessage) (Event, error) {
	return decodeInto[T](raw)
}

var messageDecoders = map[string]func(json.RawMessage) (Message, error){
	TagInit:      messageDecoder[Init],
	TagStart:     messageDecoder[Start],
	TagStep:      messageDecoder[Step],
	TagSetOption: messageDecoder[SetOption],
	TagReset:     messageDecoder[Reset],
	TagCommand:   messageDecoder[Command],
	TagAdd:       messageDecoder[AddObject],
	TagRemove:    messageDecoder[RemoveObject],
	TagRayCast:   messageDecoder[RayCast],
	TagProbe:     messageDecoder[Probe],
}

var eventDecoders = map[string]func(json.RawMessage) (Event, error){
	TagReady:         eventDecoder[Ready],
	TagStepDone:      eventDecoder[StepDone],
	TagPoseUpdate:    eventDecoder[PoseUpdate],
	TagEllipsoid:     eventDecoder[EllipsoidRequest],
	TagBreak:         eventDecoder[BreakRequest],
	TagRayCastResult: eventDecoder[RayCastResult],
}

// DecodeMessage parses a frame produced by EncodeMessage. A carried buffer is
// returned as a fresh Buffer owned by the caller.
func DecodeMessage(frame []byte) (Message, error) {
	env, data, err := split(frame)
	if err != nil {
		return nil, &bridge.ProtocolError{Tag: env.Tag, Wrapped: err}
	}
	dec, ok := messageDecoders[env.Tag]
	if !ok {
		return nil, &bridge.ProtocolError{Tag: env.Tag, Wrapped: bridge.ErrUnknownMessage}
	}
	m, err := dec(env.Body)
	if err != nil {
		return nil, &bridge.ProtocolError{Tag: env.Tag, Wrapped: err}
	}
	if data != nil {
		m = withBuffer(m, layout.Wrap(data))
	}
	return m, nil
}

// DecodeEvent parses a frame produced by EncodeEvent.
func DecodeEvent(frame []byte) (Event, error) {
	env, data, err := split(frame)
	if err != nil {
		return nil, &bridge.ProtocolError{Tag: env.Tag, Wrapped: err}
	}
	dec, ok := eventDecoders[env.Tag]
	if !ok {
		return nil, &bridge.ProtocolError{Tag: env.Tag, Wrapped: bridge.ErrUnknownMessage}
	}
	e, err := dec(env.Body)
	if err != nil {
		return nil, &bridge.ProtocolError{Tag: env.Tag, Wrapped: err}
	}
	if data != nil {
		e = withBuffer(e, layout.Wrap(data))
	}
	return e, nil
}
