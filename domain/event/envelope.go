package event

import (
	"encoding/json"
	"fmt"

	"chat-sync/errors"

	"github.com/valyala/fastjson"
)

// Envelope is the frame exchanged over the socket.
type Envelope struct {
	Event Name            `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   *uint64         `json:"ack,omitempty"`
}

// Raw is an already encoded event, typically received from another node.
type Raw struct {
	Name Name
	Data json.RawMessage
}

func (r Raw) EventName() Name { return r.Name }

func (r Raw) MarshalJSON() ([]byte, error) {
	if len(r.Data) == 0 {
		return []byte("null"), nil
	}
	return r.Data, nil
}

// Encode builds the frame pushed to clients for a domain event.
func Encode(evt DomainEvent) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", evt.EventName(), err)
	}
	return json.Marshal(Envelope{Event: evt.EventName(), Data: data})
}

// EncodeAck builds the frame answering the request identified by id.
func EncodeAck(id uint64, payload AckPayload) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode ack: %w", err)
	}
	return json.Marshal(Envelope{Event: Ack, Data: data, Ack: &id})
}

// Decode parses an inbound frame. fastjson rejects malformed input before any allocation of typed payloads.
func Decode(frame []byte) (Envelope, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(frame)
	if err != nil {
		return Envelope{}, errors.Validation("malformed frame: %v", err)
	}
	name := string(v.GetStringBytes("event"))
	if name == "" {
		return Envelope{}, errors.Validation("missing event name")
	}
	env := Envelope{Event: Name(name)}
	if data := v.Get("data"); data != nil {
		env.Data = data.MarshalTo(nil)
	}
	if ack := v.Get("ack"); ack != nil && ack.Type() == fastjson.TypeNumber {
		id, err := ack.Uint64()
		if err != nil {
			return Envelope{}, errors.Validation("invalid ack id: %v", err)
		}
		env.Ack = &id
	}
	return env, nil
}

// DecodeData unmarshals the data of an envelope into out.
func (e Envelope) DecodeData(out any) error {
	if len(e.Data) == 0 {
		return errors.Validation("%s: missing data", e.Event)
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		return errors.Validation("%s: %v", e.Event, err)
	}
	return nil
}
