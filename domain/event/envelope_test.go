package event

import (
	"encoding/json"
	"testing"

	"chat-sync/domain"
	"chat-sync/errors"

	"github.com/stretchr/testify/require"
)

func TestDecode_Frame_With_Ack(t *testing.T) {
	req := require.New(t)

	// Given a send-message frame carrying an ack id
	frame := []byte(`{"event":"send-message","data":{"chatId":"c1","content":"hi","messageType":"text"},"ack":7}`)

	// When it's decoded
	env, err := Decode(frame)

	// Then the envelope and its payload are available
	req.NoError(err)
	req.Equal(SendMessage, env.Event)
	req.NotNil(env.Ack)
	req.Equal(uint64(7), *env.Ack)

	var payload SendMessagePayload
	req.NoError(env.DecodeData(&payload))
	req.Equal(domain.ChatID("c1"), payload.ChatID)
	req.Equal(domain.MessageTypeText, payload.MessageType)
}

func TestDecode_Rejects_Malformed_Frames(t *testing.T) {
	req := require.New(t)
	for _, frame := range []string{`{`, `{"data":{}}`, `{"event":"join-chat","ack":-1}`} {
		_, err := Decode([]byte(frame))
		req.ErrorIs(err, errors.ErrValidation, frame)
	}
}

func TestEncode_Ack_And_Raw(t *testing.T) {
	req := require.New(t)

	frame, err := EncodeAck(3, AckPayload{OK: false, Error: &ErrorPayload{Code: "FORBIDDEN", Message: "no"}})
	req.NoError(err)
	req.JSONEq(`{"event":"ack","ack":3,"data":{"ok":false,"error":{"code":"FORBIDDEN","message":"no"}}}`, string(frame))

	// Given an event received from another node
	raw := Raw{Name: UserOffline, Data: json.RawMessage(`{"userId":"u1"}`)}

	// Then it's re-encoded untouched
	frame, err = Encode(raw)
	req.NoError(err)
	req.JSONEq(`{"event":"user-offline","data":{"userId":"u1"}}`, string(frame))
}
