// Package server dispatches calls to registered handlers and serves them over
// framed TCP and HTTP.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (single goroutine reads frames)
//	  → for each request: go handleRequest
//	    → Codec.Decode(Call) → middleware chain → Dispatcher.Handle → write envelope frame
package server

import (
	"context"
	"errors"
	"fmt"
	"go.uber.org/zap"
	"machinery/codec"
	"machinery/message"
	"machinery/middleware"
	"machinery/protocol"
	"machinery/registry"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("server closed")

// Server serves a Dispatcher over protocol frames.
type Server struct {
	dispatcher  *Dispatcher
	opts        *options
	logger      *zap.Logger
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc
	buildOnce   sync.Once

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}

	wg       sync.WaitGroup // in-flight requests
	shutdown atomic.Bool
}

// NewServer returns a server for d. Accepted options are WithLogger and
// WithRegistry.
func NewServer(d *Dispatcher, opts ...Option) *Server {
	o := newOptions(opts)
	return &Server{
		dispatcher: d,
		opts:       o,
		logger:     o.logger,
		conns:      make(map[net.Conn]struct{}),
	}
}

// Use appends a middleware. Middlewares run in the order they are added and
// must all be added before the first call is served.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Handler returns the dispatcher wrapped in the middleware chain. The chain is
// built once, on first use.
func (svr *Server) Handler() middleware.HandlerFunc {
	svr.buildOnce.Do(func() {
		svr.handler = middleware.Chain(svr.middlewares...)(svr.dispatcher.Handle)
	})
	return svr.handler
}

// HTTPHandler returns the HTTP binding over the same middleware chain.
func (svr *Server) HTTPHandler() *HTTPHandler {
	return NewHTTPHandler(svr.Handler(), svr.logger)
}

// Serve listens on address and serves until Shutdown.
func (svr *Server) Serve(network, address string) error {
	lis, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return svr.ServeListener(lis)
}

// ServeListener serves on lis until Shutdown. With a registry configured,
// every ServiceID is advertised before the first Accept.
func (svr *Server) ServeListener(lis net.Listener) error {
	svr.mu.Lock()
	if svr.shutdown.Load() {
		svr.mu.Unlock()
		lis.Close()
		return ErrServerClosed
	}
	svr.listener = lis
	svr.mu.Unlock()

	svr.Handler()
	if err := svr.advertise(); err != nil {
		lis.Close()
		return err
	}
	svr.logger.Info("serving",
		zap.String("addr", lis.Addr().String()),
		zap.Int("services", len(svr.dispatcher.ServiceIDs())))

	for {
		conn, err := lis.Accept()
		if err != nil {
			if svr.shutdown.Load() {
				return ErrServerClosed
			}
			return err
		}
		if !svr.track(conn) {
			conn.Close()
			return ErrServerClosed
		}
		go svr.handleConn(conn)
	}
}

// Addr returns the listening address, or nil before Serve.
func (svr *Server) Addr() net.Addr {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.listener == nil {
		return nil
	}
	return svr.listener.Addr()
}

func (svr *Server) advertise() error {
	reg := svr.opts.registry
	if reg == nil {
		return nil
	}
	ctx := context.Background()
	for _, id := range svr.dispatcher.ServiceIDs() {
		err := reg.Register(ctx, id, registry.ServiceInstance{Addr: svr.opts.advertise, Weight: 1}, svr.opts.ttl)
		if err != nil {
			return fmt.Errorf("advertise %s: %w", id, err)
		}
	}
	return nil
}

func (svr *Server) track(conn net.Conn) bool {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.shutdown.Load() {
		return false
	}
	svr.conns[conn] = struct{}{}
	return true
}

// handleConn reads frames sequentially, since frame boundaries depend on
// order, and serves each request in its own goroutine. Responses on one
// connection share writeMu so frames never interleave.
//
// Once Shutdown has begun no new request is admitted. The connection is left
// open so replies to requests already admitted can still be written;
// Shutdown closes it after they finish.
func (svr *Server) handleConn(conn net.Conn) {
	defer func() {
		svr.mu.Lock()
		defer svr.mu.Unlock()
		if svr.shutdown.Load() {
			return
		}
		delete(svr.conns, conn)
		conn.Close()
	}()

	writeMu := &sync.Mutex{} // per-connection write lock, shared by all requests on this conn
	for {
		// Read one complete frame. Only this goroutine reads from conn.
		header, body, err := protocol.Decode(conn)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && !svr.shutdown.Load() {
				svr.logger.Debug("connection closed", zap.String("peer", conn.RemoteAddr().String()), zap.Error(err))
			}
			return
		}

		// Heartbeats only keep the connection alive.
		if header.MsgType != protocol.MsgTypeRequest {
			continue
		}

		// Admission and Shutdown's flag flip share svr.mu, so wg.Add never
		// races with wg.Wait.
		if !svr.admit() {
			return
		}
		// Without `go`, a slow handler would hold back every later request
		// on this connection.
		go svr.handleRequest(header, body, conn, writeMu)
	}
}

// admit counts one more in-flight request, unless shutdown has begun.
func (svr *Server) admit() bool {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.shutdown.Load() {
		return false
	}
	svr.wg.Add(1)
	return true
}

// handleRequest serves one frame: decode the Call with the frame's codec, run
// it through the middleware chain, write the envelope back under the same seq.
func (svr *Server) handleRequest(header *protocol.Header, body []byte, conn net.Conn, writeMu *sync.Mutex) {
	defer svr.wg.Done()

	// Step 1: decode the frame body. Failures here still get an envelope so
	// the caller waiting on this seq is released.
	var reply *message.Reply
	call := &message.Call{}
	if c := codec.GetCodec(codec.CodecType(header.CodecType)); c == nil {
		reply = message.Fail(fmt.Errorf("unsupported codec %d", header.CodecType))
	} else if err := c.Decode(body, call); err != nil {
		reply = message.Fail(&message.InputError{Err: err})
	} else {
		// Step 2: middleware chain → dispatcher.
		ctx := NewContext(context.Background(), Metadata{RemoteAddr: conn.RemoteAddr().String()})
		reply = svr.Handler()(ctx, call)
	}

	// Step 3: write the response frame. The body is the envelope itself, never
	// codec encoded; the codec byte is echoed so the client knows what it sent.
	writeMu.Lock()
	defer writeMu.Unlock()
	err := protocol.Encode(conn, &protocol.Header{
		CodecType: header.CodecType,
		MsgType:   protocol.MsgTypeResponse,
		Seq:       header.Seq, // same seq as the request: this is how multiplexing works
	}, reply.Body)
	if err != nil {
		svr.logger.Warn("write response", zap.String("service", call.ServiceID), zap.Error(err))
	}
}

// Shutdown stops the server gracefully:
//  1. withdraw every ServiceID from the registry so clients stop routing here
//  2. close the listener
//  3. wait up to timeout for in-flight requests, then close all connections
func (svr *Server) Shutdown(timeout time.Duration) error {
	// Step 1: deregister first, so clients stop picking this address while
	// the remaining requests drain.
	if reg := svr.opts.registry; reg != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		for _, id := range svr.dispatcher.ServiceIDs() {
			if err := reg.Deregister(ctx, id, svr.opts.advertise); err != nil {
				svr.logger.Warn("deregister", zap.String("service", id), zap.Error(err))
			}
		}
		cancel()
	}

	// Step 2: set the flag before closing the listener, so Serve reports the
	// Accept error as ErrServerClosed. Holding svr.mu also stops admit from
	// counting new requests from here on.
	svr.mu.Lock()
	svr.shutdown.Store(true)
	if svr.listener != nil {
		svr.listener.Close()
	}
	svr.mu.Unlock()

	// Step 3: wait for admitted requests, bounded by timeout.
	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = fmt.Errorf("timeout waiting for ongoing requests to finish")
	}

	// Step 4: close every connection. handleConn leaves them to us once the
	// flag is set.
	svr.mu.Lock()
	for conn := range svr.conns {
		conn.Close()
		delete(svr.conns, conn)
	}
	svr.mu.Unlock()
	return err
}
