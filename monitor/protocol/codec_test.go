package protocol

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderLineCases(t *testing.T) {
	var r = NewReader(strings.NewReader("BROKER\r\n9000\nnot-a-number\nSUBSCRIBER_CONNECTED\nWHAT\npartial"))

	var role, err = r.ReadRole()
	assert.NoError(t, err)
	assert.Equal(t, Role_BROKER, role)

	n, err := r.ReadInt()
	assert.NoError(t, err)
	assert.Equal(t, int64(9000), n)

	_, err = r.ReadInt()
	assert.Regexp(t, `parsing integer: .*invalid syntax`, err)

	tag, err := r.ReadTag()
	assert.NoError(t, err)
	assert.Equal(t, Tag_SUBSCRIBER_CONNECTED, tag)

	_, err = r.ReadTag()
	assert.Equal(t, ErrUnknownTag, errors.Cause(err))
	assert.EqualError(t, err, `"WHAT": unknown tag`)

	_, err = r.ReadLine()
	assert.Equal(t, io.ErrUnexpectedEOF, err)
	_, err = r.ReadLine()
	assert.Equal(t, io.EOF, err)
}

func TestReaderRejectsLongLines(t *testing.T) {
	var r = NewReader(strings.NewReader(strings.Repeat("x", MaxLineLength+10) + "\n"))
	var _, err = r.ReadLine()
	assert.Equal(t, ErrLineTooLong, err)

	r = NewReader(strings.NewReader(strings.Repeat("x", MaxLineLength) + "\n"))
	line, err := r.ReadLine()
	assert.NoError(t, err)
	assert.Len(t, line, MaxLineLength)
}

func TestParseRoleCases(t *testing.T) {
	var role, err = ParseRole("SUBSCRIBER")
	assert.NoError(t, err)
	assert.Equal(t, Role_SUBSCRIBER, role)
	assert.NoError(t, role.Validate())

	_, err = ParseRole("broker") // Case-sensitive.
	assert.True(t, errors.Is(err, ErrUnknownRole))

	assert.Regexp(t, `invalid Role \(0\)`, Role_INVALID.Validate())
	assert.Equal(t, "Role(42)", Role(42).String())
	assert.Equal(t, "Tag(42)", Tag(42).String())

	// Only a valid Role is written.
	var buf bytes.Buffer
	assert.Regexp(t, `invalid Role \(0\)`, NewWriter(&buf).WriteRole(Role_INVALID))
	assert.Zero(t, buf.Len())
}

func TestBrokerSessionRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	var w = NewWriter(&buf)

	require.NoError(t, w.WriteRole(Role_BROKER))
	require.NoError(t, w.WriteBrokerPorts(9000, 9100))
	require.NoError(t, w.WriteLoadDelta(Tag_SUBSCRIBER_CONNECTED, 10))
	require.NoError(t, w.WriteLoadDelta(Tag_SUBSCRIBER_DISCONNECTED, 3))
	assert.Error(t, w.WriteLoadDelta(Tag_BROKER_CONNECTED, 1))

	assert.Equal(t, "BROKER\n9000\n9100\nSUBSCRIBER_CONNECTED\n10\nSUBSCRIBER_DISCONNECTED\n3\n", buf.String())
}

func TestPeerEventRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	var w = NewWriter(&buf)

	var ev = PeerEvent{Tag: Tag_BROKER_CONNECTED, IP: "10.0.0.2", PeerPort: 9100}
	require.NoError(t, ev.Validate())
	require.NoError(t, w.WritePeerEvent(ev))
	assert.Equal(t, "BROKER_CONNECTED\n10.0.0.2\n9100\n", buf.String())

	var out, err = NewReader(&buf).ReadPeerEvent()
	require.NoError(t, err)
	assert.Equal(t, ev, out)

	// Load-delta tags are not peer events.
	_, err = NewReader(strings.NewReader("SUBSCRIBER_CONNECTED\n1\n")).ReadPeerEvent()
	assert.True(t, errors.Is(err, ErrUnknownTag))

	// An event having an empty IP is rejected.
	_, err = NewReader(strings.NewReader("BROKER_CONNECTED\n\n9100\n")).ReadPeerEvent()
	assert.EqualError(t, err, "peer event: IP: expected IP")

	assert.Regexp(t, "Tag: not a peer event", PeerEvent{Tag: Tag_SUBSCRIBER_CONNECTED}.Validate())
	assert.Regexp(t, "PeerPort: invalid port", PeerEvent{Tag: Tag_BROKER_DISCONNECTED, IP: "a"}.Validate())
}

func TestAllocationRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	var allocs = []Allocation{
		{Broker: BrokerID{IP: "10.0.0.1", SubscriberPort: 9000}, Delta: 4},
		{Broker: BrokerID{IP: "10.0.0.2", SubscriberPort: 9001}, Delta: -2},
	}
	require.NoError(t, NewWriter(&buf).WriteAllocations(allocs))
	assert.Equal(t, "10.0.0.1\n9000\n4\n10.0.0.2\n9001\n-2\nDone\n", buf.String())

	var r = NewReader(&buf)
	var out []Allocation
	for {
		var a, done, err = r.ReadAllocation()
		require.NoError(t, err)
		if done {
			break
		}
		out = append(out, a)
	}
	assert.Equal(t, allocs, out)

	// An empty listing is only the terminator.
	buf.Reset()
	require.NoError(t, NewWriter(&buf).WriteAllocations(nil))
	assert.Equal(t, "Done\n", buf.String())
}
