// Package server accepts client connections speaking the Redis protocol and
// runs their commands.
package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/leftmike/rowdis/command"
)

var ErrServerClosed = errors.New("server: closed")

type Config struct {
	Address    string
	MaxBulkLen int
	MaxArgs    int
}

type Server struct {
	mutex      sync.Mutex
	cfg        Config
	store      command.Store
	listener   net.Listener
	ready      chan struct{}
	activeConn map[net.Conn]struct{}
	connCount  int32
	shutdown   bool
	closed     bool
}

func NewServer(cfg Config, st command.Store) *Server {
	return &Server{
		cfg:        cfg,
		store:      st,
		ready:      make(chan struct{}),
		activeConn: map[net.Conn]struct{}{},
	}
}

// Addr waits until the server is listening and returns its address.
func (svr *Server) Addr() net.Addr {
	<-svr.ready

	svr.mutex.Lock()
	defer svr.mutex.Unlock()
	if svr.listener == nil {
		return nil
	}
	return svr.listener.Addr()
}

func (svr *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", svr.cfg.Address)
	if err != nil {
		close(svr.ready)
		return err
	}

	svr.mutex.Lock()
	if svr.shutdown {
		svr.mutex.Unlock()
		l.Close()
		close(svr.ready)
		return ErrServerClosed
	}
	svr.listener = l
	svr.mutex.Unlock()
	close(svr.ready)

	log.WithField("address", l.Addr().String()).Info("server listening")
	for {
		conn, err := l.Accept()
		if err != nil {
			svr.mutex.Lock()
			if svr.shutdown {
				err = ErrServerClosed
			}
			svr.mutex.Unlock()
			if err != ErrServerClosed {
				log.WithField("error", err.Error()).Error("accept")
			}
			return err
		}

		entry := log.WithFields(log.Fields{
			"addr": conn.RemoteAddr().String(),
			"conn": uuid.NewString(),
		})
		entry.Info("connected")

		go svr.handleConn(conn, entry)
	}
}

func (svr *Server) trackConn(conn net.Conn, add bool) bool {
	svr.mutex.Lock()
	defer svr.mutex.Unlock()

	if svr.closed {
		return false
	}
	if add {
		svr.activeConn[conn] = struct{}{}
		connectionsGauge.Inc()
	} else {
		delete(svr.activeConn, conn)
		connectionsGauge.Dec()
	}
	return true
}

func (svr *Server) handleConn(conn net.Conn, entry *log.Entry) {
	atomic.AddInt32(&svr.connCount, 1)
	defer atomic.AddInt32(&svr.connCount, -1)

	defer entry.Info("disconnected")

	if !svr.trackConn(conn, true) {
		conn.Close()
		return
	}
	defer func() {
		if svr.trackConn(conn, false) {
			conn.Close()
		}
	}()

	svr.serve(context.Background(), conn, conn, entry)
}

// serve runs requests read from r, writing replies to w. Replies are
// flushed once no further requests are buffered.
func (svr *Server) serve(ctx context.Context, r io.Reader, w io.Writer, entry *log.Entry) {
	rr := NewRequestReader(r, svr.cfg.MaxBulkLen, svr.cfg.MaxArgs)
	bw := bufio.NewWriter(w)
	var reply []byte

	for {
		args, err := rr.ReadRequest()
		if err != nil {
			var perr *ProtocolError
			if errors.As(err, &perr) {
				entry.WithField("error", err.Error()).Warn("protocol error")
				bw.Write(command.AppendError(nil, "ERR "+err.Error()))
				bw.Flush()
			} else if err != io.EOF {
				entry.WithField("error", err.Error()).Error("read request")
			}
			return
		}
		if len(args) == 0 {
			continue
		}

		if svr.isShutdown() {
			bw.Write(command.AppendError(nil, "ERR server shutting down"))
			bw.Flush()
			return
		}

		reply, err = command.Execute(ctx, svr.store, args[0], args[1:], reply[:0])
		_, werr := bw.Write(reply)
		if err != nil {
			entry.WithField("error", err.Error()).Error("closing connection")
			bw.Flush()
			return
		}
		if werr == nil && rr.Buffered() == 0 {
			werr = bw.Flush()
		}
		if werr != nil {
			entry.WithField("error", werr.Error()).Error("write reply")
			return
		}
	}
}

func (svr *Server) isShutdown() bool {
	svr.mutex.Lock()
	defer svr.mutex.Unlock()

	return svr.shutdown
}

func (svr *Server) Close() error {
	svr.mutex.Lock()
	defer svr.mutex.Unlock()

	if svr.closed {
		return nil
	}
	svr.closed = true

	var err error
	if !svr.shutdown {
		if svr.listener != nil {
			err = svr.listener.Close()
		}
		svr.shutdown = true
	}

	for conn := range svr.activeConn {
		conn.Close()
		delete(svr.activeConn, conn)
		connectionsGauge.Dec()
	}
	return err
}

// Shutdown stops accepting connections and waits for the active connections
// to finish or ctx to be done.
func (svr *Server) Shutdown(ctx context.Context) error {
	var err error

	svr.mutex.Lock()
	if svr.closed {
		svr.mutex.Unlock()
		return nil
	}
	if !svr.shutdown {
		if svr.listener != nil {
			err = svr.listener.Close()
		}
		svr.shutdown = true
	}
	svr.mutex.Unlock()

	last := int32(-1)
	for {
		cc := atomic.LoadInt32(&svr.connCount)
		if cc == 0 {
			break
		}
		if cc != last {
			log.WithField("connections", cc).Info("waiting for active connections")
			last = cc
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return err
}
