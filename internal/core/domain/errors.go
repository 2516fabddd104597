package domain

import "errors"

var (
	ErrInvalidChannelID     = errors.New("invalid channel id")
	ErrChannelNotFound      = errors.New("channel not found")
	ErrAccessDenied         = errors.New("you don't have access to this conversation")
	ErrNotMember            = errors.New("not a member of this channel")
	ErrInvalidIdentityID    = errors.New("invalid identity id")
	ErrIdentityNotFound     = errors.New("identity not found")
	ErrInvalidToken         = errors.New("invalid token")
	ErrUnknownEvent         = errors.New("unknown event")
	ErrMalformedEvent       = errors.New("malformed event")
	ErrConnectionClosed     = errors.New("connection closed")
	ErrSendBufferFull       = errors.New("send buffer full")
	ErrConnectionNotFound   = errors.New("connection not registered")
	ErrDefaultChannelAbsent = errors.New("default channel not provisioned")
)
