package protocol

import (
	"github.com/pkg/errors"
)

// Role is declared once, first, by every client of the monitor and selects
// the protocol branch which applies to the connection.
type Role int32

const (
	Role_INVALID Role = iota
	// BROKER clients hold a long-lived session reporting subscription deltas
	// and receiving peer membership events.
	Role_BROKER
	// SUBSCRIBER clients perform a single allocation request.
	Role_SUBSCRIBER
)

var roleNames = map[Role]string{
	Role_INVALID:    "INVALID",
	Role_BROKER:     "BROKER",
	Role_SUBSCRIBER: "SUBSCRIBER",
}

func (r Role) String() string {
	if s, ok := roleNames[r]; ok {
		return s
	}
	return "Role(" + itoa(int64(r)) + ")"
}

// Validate returns an error if the Role is not a known, valid value.
func (r Role) Validate() error {
	if r != Role_BROKER && r != Role_SUBSCRIBER {
		return NewValidationError("invalid Role (%d)", r)
	}
	return nil
}

// ErrUnknownRole is returned when a handshake declares an unrecognized Role.
var ErrUnknownRole = errors.New("unknown role")

// ParseRole parses the symbolic name of a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "BROKER":
		return Role_BROKER, nil
	case "SUBSCRIBER":
		return Role_SUBSCRIBER, nil
	}
	return Role_INVALID, errors.WithMessagef(ErrUnknownRole, "%q", s)
}

// Tag is the kind of a broker session message. SUBSCRIBER_* tags flow from
// a broker to the monitor as load deltas; BROKER_* tags flow from the monitor
// to brokers as peer membership events. Tag is a closed set: an unrecognized
// Tag on the wire is a protocol violation.
type Tag int32

const (
	Tag_INVALID Tag = iota
	Tag_SUBSCRIBER_CONNECTED
	Tag_SUBSCRIBER_DISCONNECTED
	Tag_BROKER_CONNECTED
	Tag_BROKER_DISCONNECTED
)

var tagNames = map[Tag]string{
	Tag_INVALID:                 "INVALID",
	Tag_SUBSCRIBER_CONNECTED:    "SUBSCRIBER_CONNECTED",
	Tag_SUBSCRIBER_DISCONNECTED: "SUBSCRIBER_DISCONNECTED",
	Tag_BROKER_CONNECTED:        "BROKER_CONNECTED",
	Tag_BROKER_DISCONNECTED:     "BROKER_DISCONNECTED",
}

var tagValues = map[string]Tag{
	"SUBSCRIBER_CONNECTED":    Tag_SUBSCRIBER_CONNECTED,
	"SUBSCRIBER_DISCONNECTED": Tag_SUBSCRIBER_DISCONNECTED,
	"BROKER_CONNECTED":        Tag_BROKER_CONNECTED,
	"BROKER_DISCONNECTED":     Tag_BROKER_DISCONNECTED,
}

func (t Tag) String() string {
	if s, ok := tagNames[t]; ok {
		return s
	}
	return "Tag(" + itoa(int64(t)) + ")"
}

// IsLoadDelta returns whether the Tag is a broker-reported subscription delta.
func (t Tag) IsLoadDelta() bool {
	return t == Tag_SUBSCRIBER_CONNECTED || t == Tag_SUBSCRIBER_DISCONNECTED
}

// IsPeerEvent returns whether the Tag is a monitor-pushed membership event.
func (t Tag) IsPeerEvent() bool {
	return t == Tag_BROKER_CONNECTED || t == Tag_BROKER_DISCONNECTED
}

// ErrUnknownTag is returned when a message carries an unrecognized Tag.
var ErrUnknownTag = errors.New("unknown tag")

// ParseTag parses the symbolic name of a Tag.
func ParseTag(s string) (Tag, error) {
	if t, ok := tagValues[s]; ok {
		return t, nil
	}
	return Tag_INVALID, errors.WithMessagef(ErrUnknownTag, "%q", s)
}
