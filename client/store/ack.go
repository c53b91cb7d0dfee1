package store

import (
	"chat-sync/domain/event"
	"chat-sync/errors"
)

// AckError turns a negative ack into a taxonomy error.
func AckError(ack event.AckPayload) error {
	if ack.OK {
		return nil
	}
	if ack.Error == nil {
		return errors.FromCode(errors.CodeInternal, "request refused")
	}
	return errors.FromCode(errors.Code(ack.Error.Code), ack.Error.Message)
}
