package repositories

import (
	"fmt"
	"time"

	"chat-sync/domain"

	"google.golang.org/protobuf/encoding/protowire"
)

// Records are stored in protobuf wire format so the layout stays readable by
// any protobuf tooling and tolerant to added fields.
//
//	User    { 1 id, 2 email, 3 display_name, 4 avatar, 5 password_hash, 6 roles*, 7 created_at }
//	Chat    { 1 id, 2 name, 3 avatar, 4 is_group, 5 participants*, 6 admin,
//	          7 latest_message_id, 8 latest_message_at, 9 created_at, 10 updated_at }
//	Message { 1 id, 2 chat_id, 3 sender_id, 4 content, 5 type, 6 media_refs*,
//	          7 read_by*, 8 is_system_note, 9 reply_to_id, 10 created_at }
//	MediaRef{ 1 url, 2 mime_type, 3 size }
//
// Timestamps are unix nanoseconds.

type encoder struct {
	b []byte
}

func writeString[T ~string](e *encoder, num protowire.Number, s T) {
	if s == "" {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendString(e.b, string(s))
}

func writeStrings[T ~string](e *encoder, num protowire.Number, values []T) {
	for _, v := range values {
		e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
		e.b = protowire.AppendString(e.b, string(v))
	}
}

func (e *encoder) bool(num protowire.Number, v bool) {
	if !v {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.VarintType)
	e.b = protowire.AppendVarint(e.b, protowire.EncodeBool(v))
}

func (e *encoder) int64(num protowire.Number, v int64) {
	if v == 0 {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.VarintType)
	e.b = protowire.AppendVarint(e.b, uint64(v))
}

func (e *encoder) time(num protowire.Number, t time.Time) {
	if t.IsZero() {
		return
	}
	e.int64(num, t.UnixNano())
}

func (e *encoder) message(num protowire.Number, nested []byte) {
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendBytes(e.b, nested)
}

// field is one decoded tag and the bytes that follow it.
type field struct {
	num protowire.Number
	typ protowire.Type
	b   []byte
}

// decodeRecord walks every field of b. The visitor returns the number of bytes it
// consumed, 0 to skip the field, or a negative protowire error code.
func decodeRecord(b []byte, visit func(f field) int) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m := visit(field{num: num, typ: typ, b: b})
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return fmt.Errorf("field %d: %w", num, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}

func readString[T ~string](f field, dst *T) int {
	if f.typ != protowire.BytesType {
		return 0
	}
	v, n := protowire.ConsumeString(f.b)
	if n >= 0 {
		*dst = T(v)
	}
	return n
}

func readStrings[T ~string](f field, dst *[]T) int {
	var v T
	n := readString(f, &v)
	if n > 0 {
		*dst = append(*dst, v)
	}
	return n
}

func (f field) bool(dst *bool) int {
	if f.typ != protowire.VarintType {
		return 0
	}
	v, n := protowire.ConsumeVarint(f.b)
	if n >= 0 {
		*dst = protowire.DecodeBool(v)
	}
	return n
}

func (f field) int64(dst *int64) int {
	if f.typ != protowire.VarintType {
		return 0
	}
	v, n := protowire.ConsumeVarint(f.b)
	if n >= 0 {
		*dst = int64(v)
	}
	return n
}

func (f field) time(dst *time.Time) int {
	var nanos int64
	n := f.int64(&nanos)
	if n > 0 {
		*dst = time.Unix(0, nanos).UTC()
	}
	return n
}

func (f field) bytes(visit func(b []byte) error) int {
	if f.typ != protowire.BytesType {
		return 0
	}
	v, n := protowire.ConsumeBytes(f.b)
	if n < 0 {
		return n
	}
	if err := visit(v); err != nil {
		return -1
	}
	return n
}

func encodeUser(u domain.User) []byte {
	e := &encoder{}
	writeString(e, 1, u.ID)
	writeString(e, 2, u.Email)
	writeString(e, 3, u.DisplayName)
	writeString(e, 4, u.Avatar)
	writeString(e, 5, u.PasswordHash)
	writeStrings(e, 6, u.Roles)
	e.time(7, u.CreatedAt)
	return e.b
}

func decodeUser(b []byte) (domain.User, error) {
	var u domain.User
	err := decodeRecord(b, func(f field) int {
		switch f.num {
		case 1:
			return readString(f, &u.ID)
		case 2:
			return readString(f, &u.Email)
		case 3:
			return readString(f, &u.DisplayName)
		case 4:
			return readString(f, &u.Avatar)
		case 5:
			return readString(f, &u.PasswordHash)
		case 6:
			return readStrings(f, &u.Roles)
		case 7:
			return f.time(&u.CreatedAt)
		}
		return 0
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("decode user: %w", err)
	}
	return u, nil
}

func encodeChat(c domain.Chat) []byte {
	e := &encoder{}
	writeString(e, 1, c.ID)
	writeString(e, 2, c.Name)
	writeString(e, 3, c.Avatar)
	e.bool(4, c.IsGroup)
	writeStrings(e, 5, c.Participants)
	writeString(e, 6, c.Admin)
	writeString(e, 7, c.LatestMessageID)
	e.time(8, c.LatestMessageAt)
	e.time(9, c.CreatedAt)
	e.time(10, c.UpdatedAt)
	return e.b
}

func decodeChat(b []byte) (domain.Chat, error) {
	var c domain.Chat
	err := decodeRecord(b, func(f field) int {
		switch f.num {
		case 1:
			return readString(f, &c.ID)
		case 2:
			return readString(f, &c.Name)
		case 3:
			return readString(f, &c.Avatar)
		case 4:
			return f.bool(&c.IsGroup)
		case 5:
			return readStrings(f, &c.Participants)
		case 6:
			return readString(f, &c.Admin)
		case 7:
			return readString(f, &c.LatestMessageID)
		case 8:
			return f.time(&c.LatestMessageAt)
		case 9:
			return f.time(&c.CreatedAt)
		case 10:
			return f.time(&c.UpdatedAt)
		}
		return 0
	})
	if err != nil {
		return domain.Chat{}, fmt.Errorf("decode chat: %w", err)
	}
	return c, nil
}

func encodeMediaRef(m domain.MediaRef) []byte {
	e := &encoder{}
	writeString(e, 1, m.URL)
	writeString(e, 2, m.MimeType)
	e.int64(3, m.Size)
	return e.b
}

func decodeMediaRef(b []byte) (domain.MediaRef, error) {
	var m domain.MediaRef
	err := decodeRecord(b, func(f field) int {
		switch f.num {
		case 1:
			return readString(f, &m.URL)
		case 2:
			return readString(f, &m.MimeType)
		case 3:
			return f.int64(&m.Size)
		}
		return 0
	})
	return m, err
}

func encodeMessage(m domain.Message) []byte {
	e := &encoder{}
	writeString(e, 1, m.ID)
	writeString(e, 2, m.ChatID)
	writeString(e, 3, m.SenderID)
	writeString(e, 4, m.Content)
	writeString(e, 5, m.Type)
	for _, ref := range m.MediaRefs {
		e.message(6, encodeMediaRef(ref))
	}
	writeStrings(e, 7, m.ReadBy)
	e.bool(8, m.IsSystemNote)
	writeString(e, 9, m.ReplyToID)
	e.time(10, m.CreatedAt)
	return e.b
}

func decodeMessage(b []byte) (domain.Message, error) {
	var m domain.Message
	err := decodeRecord(b, func(f field) int {
		switch f.num {
		case 1:
			return readString(f, &m.ID)
		case 2:
			return readString(f, &m.ChatID)
		case 3:
			return readString(f, &m.SenderID)
		case 4:
			return readString(f, &m.Content)
		case 5:
			return readString(f, &m.Type)
		case 6:
			return f.bytes(func(nested []byte) error {
				ref, err := decodeMediaRef(nested)
				if err != nil {
					return err
				}
				m.MediaRefs = append(m.MediaRefs, ref)
				return nil
			})
		case 7:
			return readStrings(f, &m.ReadBy)
		case 8:
			return f.bool(&m.IsSystemNote)
		case 9:
			return readString(f, &m.ReplyToID)
		case 10:
			return f.time(&m.CreatedAt)
		}
		return 0
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("decode message: %w", err)
	}
	return m, nil
}
