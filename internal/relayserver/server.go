// Package relayserver implements RelayServer (spec §4.7): the top-level
// orchestration that binds a listener for every configured tuple, starts
// the worker pool, and runs until told to stop.
package relayserver

import (
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaycore/tcprelay/internal/buffer"
	"github.com/relaycore/tcprelay/internal/config"
	"github.com/relaycore/tcprelay/internal/pool"
)

// Options configures a Server at construction time.
type Options struct {
	// Workers is the worker count passed to pool.New; values < 1 are
	// clamped to 1.
	Workers int
	// MaxBufferBytes is the per-direction ForwardingBuffer high-water
	// mark; zero selects buffer.DefaultMax.
	MaxBufferBytes int
	// ConnectTimeout bounds outbound connects; zero selects
	// engine.DefaultConnectTimeout.
	ConnectTimeout time.Duration
}

// Server binds every configured RelayTuple and runs the worker pool behind
// them until Shutdown is called.
type Server struct {
	log  zerolog.Logger
	pool *pool.WorkerPool
}

// New creates a Server and its worker pool. Construction itself does no
// I/O; call Run with the tuples to bind listeners and start workers.
func New(log zerolog.Logger, opts Options) *Server {
	maxBuf := opts.MaxBufferBytes
	if maxBuf <= 0 {
		maxBuf = buffer.DefaultMax
	}
	return &Server{
		log:  log,
		pool: pool.New(opts.Workers, log, maxBuf, opts.ConnectTimeout),
	}
}

// Run binds a listener for every tuple and starts the worker pool's accept
// loops. Any bind/listen failure is fatal per spec §7 and is returned
// immediately; listeners already bound in this call are torn down before
// returning. boundAddrs mirrors tuples and reports the actual bound address
// of each listener (relevant when Listen.Port == 0, spec §3's ephemeral
// test allowance).
func (s *Server) Run(tuples []config.Tuple) (boundAddrs []net.Addr, err error) {
	s.pool.Start()

	boundAddrs = make([]net.Addr, 0, len(tuples))
	for _, tuple := range tuples {
		addr, attachErr := s.pool.AttachListener(tuple)
		if attachErr != nil {
			s.pool.Shutdown()
			return nil, fmt.Errorf("relayserver: %w", attachErr)
		}
		s.log.Info().
			Str("listen", addr.String()).
			Str("dst", tuple.Dst.String()).
			Msg("listening")
		boundAddrs = append(boundAddrs, addr)
	}
	return boundAddrs, nil
}

// Shutdown stops every accept loop and worker dispatch goroutine. Live
// pairs continue to drain under their own half-close/error lifecycle; the
// core performs no forced teardown on shutdown (spec §5).
func (s *Server) Shutdown() {
	s.pool.Shutdown()
}

// Pool exposes the underlying worker pool, mainly for tests asserting
// fan-out distribution (spec §8 scenario 6).
func (s *Server) Pool() *pool.WorkerPool {
	return s.pool
}
