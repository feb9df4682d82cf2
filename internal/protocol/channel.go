package protocol

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
)

// ChildFD is the descriptor number under which a worker inherits its end of
// the channel (the first entry of exec.Cmd.ExtraFiles).
const ChildFD = 3

// EnvCodec names the environment variable carrying the codec name to the
// worker process.
const EnvCodec = "PULSAR_CHANNEL_CODEC"

// ErrAlreadySent is returned when a second message is sent on a one-shot
// side of the channel.
var ErrAlreadySent = errors.New("result channel: message already sent")

// ErrMessageTooLarge is returned when an encoded message exceeds
// MaxMessageBytes. Nothing is written and the channel stays usable.
var ErrMessageTooLarge = errors.New("message too large")

// ErrNoResponse is returned when the peer closed the channel without
// sending its message.
var ErrNoResponse = errors.New("result channel closed without a message")

// Channel is one end of a single request/single response exchange. Each
// direction carries at most one message.
type Channel struct {
	conn  net.Conn
	codec Codec

	sent      atomic.Bool
	closeOnce sync.Once
}

// NewChannel wraps conn. A nil codec selects JSON.
func NewChannel(conn net.Conn, codec Codec) *Channel {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &Channel{conn: conn, codec: codec}
}

// Codec returns the body codec of the channel.
func (c *Channel) Codec() Codec {
	return c.codec
}

// SendRequest sends the request. Dispatcher side.
func (c *Channel) SendRequest(req *Request) error {
	return c.send(req)
}

// ReceiveRequest reads the request. Worker side.
func (c *Channel) ReceiveRequest() (*Request, error) {
	var req Request
	if err := c.receive(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// Respond sends the response. Worker side; may succeed only once.
func (c *Channel) Respond(resp *Response) error {
	return c.send(resp)
}

// ReceiveResponse reads the response. Dispatcher side. It returns
// ErrNoResponse when the worker closed its end without answering.
func (c *Channel) ReceiveResponse() (*Response, error) {
	var resp Response
	if err := c.receive(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Sent reports whether this end already sent its message.
func (c *Channel) Sent() bool {
	return c.sent.Load()
}

// Close closes the underlying connection.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// send encodes and size-checks v before claiming the one-shot slot, so a
// message that cannot be framed leaves room for a replacement.
func (c *Channel) send(v any) error {
	if c.sent.Load() {
		return ErrAlreadySent
	}
	data, err := c.codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if len(data) > MaxMessageBytes {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(data))
	}
	if !c.sent.CompareAndSwap(false, true) {
		return ErrAlreadySent
	}
	if err := writeFrame(c.conn, data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

func (c *Channel) receive(v any) error {
	data, err := readFrame(c.conn)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, syscall.ECONNRESET) {
			return ErrNoResponse
		}
		return fmt.Errorf("read message: %w", err)
	}
	if err := c.codec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}
