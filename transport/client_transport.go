package transport

import (
	"context"
	"fmt"
	"machinery/codec"
	"machinery/message"
	"machinery/protocol"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultHeartbeat is the heartbeat interval of a ClientTransport.
const DefaultHeartbeat = 30 * time.Second

type response struct {
	body []byte
	err  error
}

// ClientTransport runs many concurrent calls over one TCP connection.
//
// Each request gets a sequence number. recvLoop reads responses in whatever
// order the server writes them and hands each to the caller waiting on that
// sequence number.
//
//	goroutine-1 ──Send(seq=1)──┐
//	goroutine-2 ──Send(seq=2)──┼──→ single TCP conn ──→ Server
//	goroutine-3 ──Send(seq=3)──┘
//
//	recvLoop:  ←── response(seq=2) → pending[2] → goroutine-2 wakes up
type ClientTransport struct {
	conn    net.Conn
	codec   codec.Codec
	seq     uint32     // guarded by sending
	sending sync.Mutex // a frame must hit the wire in one piece
	pending sync.Map   // map[uint32]chan response
	closed  atomic.Bool
	done    chan struct{}
	once    sync.Once
}

// NewClientTransport wraps conn and starts the receive and heartbeat loops.
// A heartbeat of zero disables probing.
func NewClientTransport(conn net.Conn, codecType codec.CodecType, heartbeat time.Duration) (*ClientTransport, error) {
	c := codec.GetCodec(codecType)
	if c == nil {
		return nil, fmt.Errorf("transport: unknown codec %s", codecType)
	}
	t := &ClientTransport{
		conn:  conn,
		codec: c,
		done:  make(chan struct{}),
	}
	go t.recvLoop()
	if heartbeat > 0 {
		go t.heartbeatLoop(heartbeat)
	}
	return t, nil
}

// Dial connects to addr and returns a ClientTransport on the connection.
func Dial(ctx context.Context, addr string, codecType codec.CodecType) (*ClientTransport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	t, err := NewClientTransport(conn, codecType, DefaultHeartbeat)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return t, nil
}

// Send writes a request frame and waits for the matching response frame or
// for ctx to end. A response that arrives after ctx ended is dropped.
func (t *ClientTransport) Send(ctx context.Context, serviceID string, args []byte) ([]byte, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}

	// Step 1: encode the Call with this transport's codec.
	body, err := t.codec.Encode(&message.Call{ServiceID: serviceID, Args: args})
	if err != nil {
		return nil, fmt.Errorf("transport: encode call: %w", err)
	}

	respChan := make(chan response, 1) // buffered so recvLoop never blocks on a caller that gave up

	// Step 2: take a seq and register for it before writing, so recvLoop
	// cannot miss a fast response.
	t.sending.Lock()
	t.seq++
	seq := t.seq
	t.pending.Store(seq, respChan)
	// Step 3: write the whole frame under the lock.
	err = protocol.Encode(t.conn, &protocol.Header{
		CodecType: byte(t.codec.Type()),
		MsgType:   protocol.MsgTypeRequest,
		Seq:       seq,
	}, body)
	t.sending.Unlock()

	if err != nil {
		t.pending.Delete(seq)
		return nil, fmt.Errorf("transport: write request: %w", err)
	}
	// recvLoop may have failed between Store and here without seeing seq.
	if t.closed.Load() {
		if _, ok := t.pending.LoadAndDelete(seq); ok {
			return nil, ErrClosed
		}
	}

	// Step 4: wait for recvLoop to route our response, or give up with ctx.
	select {
	case resp := <-respChan:
		return resp.body, resp.err
	case <-ctx.Done():
		t.pending.Delete(seq) // a late response finds no channel and is dropped
		return nil, ctx.Err()
	}
}

// recvLoop is the only reader of the connection; frames must be read
// sequentially to keep their boundaries.
func (t *ClientTransport) recvLoop() {
	for {
		// Read one complete frame.
		header, body, err := protocol.Decode(t.conn)
		if err != nil {
			// Connection broken or out of sync: release every pending caller.
			t.fail(fmt.Errorf("%w: %v", ErrClosed, err))
			return
		}
		if header.MsgType != protocol.MsgTypeResponse {
			continue
		}
		// Route the envelope to whoever waits on this seq.
		if ch, ok := t.pending.LoadAndDelete(header.Seq); ok {
			ch.(chan response) <- response{body: body}
		}
	}
}

// fail marks the transport closed, closes the connection and releases every
// waiting caller.
func (t *ClientTransport) fail(err error) {
	t.closed.Store(true)
	t.once.Do(func() { close(t.done) })
	t.conn.Close()
	t.pending.Range(func(key, value any) bool {
		t.pending.Delete(key)
		value.(chan response) <- response{err: err}
		return true
	})
}

func (t *ClientTransport) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
		}
		t.sending.Lock()
		err := protocol.Encode(t.conn, &protocol.Header{
			CodecType: byte(t.codec.Type()),
			MsgType:   protocol.MsgTypeHeartbeat,
		}, nil)
		t.sending.Unlock()
		if err != nil {
			return
		}
	}
}

// Closed reports whether the connection is no longer usable.
func (t *ClientTransport) Closed() bool {
	return t.closed.Load()
}

// Close closes the connection. Pending calls fail with ErrClosed.
func (t *ClientTransport) Close() error {
	t.closed.Store(true)
	return t.conn.Close()
}
