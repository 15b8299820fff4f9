package protocol

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"sync"

	"github.com/pkg/errors"
)

// Done terminates the allocation listing sent to a subscriber.
const Done = "Done"

// MaxLineLength bounds the length of a single protocol record, excluding
// its line terminator.
const MaxLineLength = 4096

// ErrLineTooLong is returned when a record exceeds MaxLineLength.
var ErrLineTooLong = errors.New("protocol line too long")

// PeerEvent is pushed by the monitor to each connected broker when another
// broker joins (Tag_BROKER_CONNECTED) or leaves (Tag_BROKER_DISCONNECTED).
type PeerEvent struct {
	Tag      Tag
	IP       string
	PeerPort int
}

// Validate returns an error if the PeerEvent is not well-formed.
func (m PeerEvent) Validate() error {
	if !m.Tag.IsPeerEvent() {
		return ExtendContext(NewValidationError("not a peer event (%s)", m.Tag), "Tag")
	} else if m.IP == "" {
		return ExtendContext(NewValidationError("expected IP"), "IP")
	} else if err := ValidatePort(m.PeerPort); err != nil {
		return ExtendContext(err, "PeerPort")
	}
	return nil
}

// Allocation is the number of subscriptions a subscriber should add to (or,
// where negative, shed from) a Broker.
type Allocation struct {
	Broker BrokerID
	Delta  int64
}

// Reader reads records of the monitor protocol from a buffered stream.
// Reader is not safe for concurrent use.
type Reader struct {
	br *bufio.Reader
}

// NewReader returns a Reader of |r|.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, MaxLineLength+2)}
}

// ReadLine returns the next record, stripped of its "\n" or "\r\n"
// terminator. A clean end-of-stream returns io.EOF, while a stream ending
// mid-record returns io.ErrUnexpectedEOF.
func (r *Reader) ReadLine() (string, error) {
	var line, err = r.br.ReadSlice('\n')

	if err == bufio.ErrBufferFull {
		return "", ErrLineTooLong
	} else if err == io.EOF && len(line) != 0 {
		return "", io.ErrUnexpectedEOF
	} else if err != nil {
		return "", err
	}
	line = bytes.TrimSuffix(line[:len(line)-1], []byte{'\r'})

	if len(line) > MaxLineLength {
		return "", ErrLineTooLong
	}
	return string(line), nil
}

// ReadInt reads a base-10 integer record.
func (r *Reader) ReadInt() (int64, error) {
	var line, err = r.ReadLine()
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(line, 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "parsing integer")
	}
	return n, nil
}

// ReadPort reads an integer record and verifies it's a valid port.
func (r *Reader) ReadPort() (int, error) {
	var n, err = r.ReadInt()
	if err != nil {
		return 0, err
	} else if err = ValidatePort(int(n)); err != nil || n != int64(int(n)) {
		return 0, NewValidationError("invalid port (%d)", n)
	}
	return int(n), nil
}

// ReadRole reads a Role record.
func (r *Reader) ReadRole() (Role, error) {
	var line, err = r.ReadLine()
	if err != nil {
		return Role_INVALID, err
	}
	return ParseRole(line)
}

// ReadTag reads a Tag record.
func (r *Reader) ReadTag() (Tag, error) {
	var line, err = r.ReadLine()
	if err != nil {
		return Tag_INVALID, err
	}
	return ParseTag(line)
}

// ReadPeerEvent reads a PeerEvent pushed by the monitor.
func (r *Reader) ReadPeerEvent() (PeerEvent, error) {
	var ev PeerEvent
	var err error

	if ev.Tag, err = r.ReadTag(); err != nil {
		return ev, err
	} else if !ev.Tag.IsPeerEvent() {
		return ev, errors.WithMessagef(ErrUnknownTag, "%s is not a peer event", ev.Tag)
	} else if ev.IP, err = r.ReadLine(); err != nil {
		return ev, errors.WithMessage(midRecord(err), "reading peer IP")
	} else if ev.PeerPort, err = r.ReadPort(); err != nil {
		return ev, errors.WithMessage(midRecord(err), "reading peer port")
	} else if err = ev.Validate(); err != nil {
		return ev, errors.WithMessage(err, "peer event")
	}
	return ev, nil
}

// ReadAllocation reads the next Allocation of a subscriber response. |done|
// is true (and the Allocation zero-valued) if the response terminator was read.
func (r *Reader) ReadAllocation() (alloc Allocation, done bool, err error) {
	var ip string
	if ip, err = r.ReadLine(); err != nil {
		return
	} else if ip == Done {
		done = true
		return
	}
	alloc.Broker.IP = ip

	if alloc.Broker.SubscriberPort, err = r.ReadPort(); err != nil {
		err = errors.WithMessage(midRecord(err), "reading subscriber port")
	} else if alloc.Delta, err = r.ReadInt(); err != nil {
		err = errors.WithMessage(midRecord(err), "reading delta")
	}
	return
}

// midRecord maps a clean io.EOF, read after a record has begun, to
// io.ErrUnexpectedEOF.
func midRecord(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Writer writes records of the monitor protocol. Each Write* call emits its
// records with a single underlying Write, and calls are serialized, so
// messages written from concurrent goroutines never interleave.
type Writer struct {
	mu  sync.Mutex
	w   io.Writer
	buf []byte
}

// NewWriter returns a Writer of |w|.
func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

// WriteLines writes each of |lines| as a record.
func (w *Writer) WriteLines(lines ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = w.buf[:0]
	for _, l := range lines {
		w.buf = append(w.buf, l...)
		w.buf = append(w.buf, '\n')
	}
	var _, err = w.w.Write(w.buf)
	return err
}

// WriteRole writes the handshake Role.
func (w *Writer) WriteRole(r Role) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return w.WriteLines(r.String())
}

// WriteInt writes an integer record.
func (w *Writer) WriteInt(n int64) error { return w.WriteLines(itoa(n)) }

// WriteBrokerPorts writes the ports declared by a broker after its handshake.
func (w *Writer) WriteBrokerPorts(subscriberPort, peerPort int) error {
	return w.WriteLines(itoa(int64(subscriberPort)), itoa(int64(peerPort)))
}

// WriteLoadDelta writes a broker-reported subscription delta.
func (w *Writer) WriteLoadDelta(tag Tag, n int64) error {
	if !tag.IsLoadDelta() {
		return errors.WithMessagef(ErrUnknownTag, "%s is not a load delta", tag)
	}
	return w.WriteLines(tag.String(), itoa(n))
}

// WritePeerEvent writes a peer membership event.
func (w *Writer) WritePeerEvent(ev PeerEvent) error {
	return w.WriteLines(ev.Tag.String(), ev.IP, itoa(int64(ev.PeerPort)))
}

// WriteAllocations writes |allocs| followed by the Done terminator.
func (w *Writer) WriteAllocations(allocs []Allocation) error {
	var lines = make([]string, 0, 3*len(allocs)+1)
	for _, a := range allocs {
		lines = append(lines, a.Broker.IP, itoa(int64(a.Broker.SubscriberPort)), itoa(a.Delta))
	}
	return w.WriteLines(append(lines, Done)...)
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
