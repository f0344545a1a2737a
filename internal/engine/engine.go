// Package engine implements ForwardingEngine: the per-worker object that
// adopts an accepted client socket handed to it by the dispatcher, dials the
// configured destination, and installs a ConnectionPair once the outbound
// connect succeeds.
package engine

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/relaycore/tcprelay/internal/addr"
	"github.com/relaycore/tcprelay/internal/config"
	"github.com/relaycore/tcprelay/internal/pair"
	"github.com/relaycore/tcprelay/internal/sockopt"
)

// DefaultConnectTimeout bounds the outbound connect per spec §4.5 step 2.
const DefaultConnectTimeout = 10 * time.Second

// Engine is a single worker's forwarding loop. Its exported methods are safe
// for concurrent use: the pairs map is guarded by mu and the counters and
// stop flag are atomic.
type Engine struct {
	ID             int
	log            zerolog.Logger
	maxBuf         int
	connectTimeout time.Duration

	nextSeq   uint64
	liveCount int64
	stopped   atomic.Bool

	mu    sync.Mutex
	pairs map[uuid.UUID]*pair.Pair
}

// New creates an Engine for worker id. maxBuf is the per-direction
// ForwardingBuffer high-water mark.
func New(id int, log zerolog.Logger, maxBuf int, connectTimeout time.Duration) *Engine {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	return &Engine{
		ID:             id,
		log:            log.With().Int("worker", id).Logger(),
		maxBuf:         maxBuf,
		connectTimeout: connectTimeout,
		pairs:          make(map[uuid.UUID]*pair.Pair),
	}
}

// AdoptAccepted wraps an accepted client connection, dials tuple.Dst
// (optionally bound to tuple.Src), and on success installs and starts a
// ConnectionPair. Connect failures close the inbound socket and abandon the
// pair without affecting any other connection, per spec §7.
func (e *Engine) AdoptAccepted(clientConn net.Conn, tuple config.Tuple) {
	if e.stopped.Load() {
		_ = clientConn.Close()
		return
	}

	clientLocal, clientRemote := endpointsOf(clientConn)
	e.log.Info().Str("raddr", clientRemote.String()).Str("laddr", clientLocal.String()).Msg("New conn")

	ctx, cancel := context.WithTimeout(context.Background(), e.connectTimeout)
	serverConn, err := sockopt.CreateConnection(ctx, tuple.Src, tuple.Dst, e.connectTimeout)
	cancel()
	if err != nil {
		e.log.Warn().Err(err).Str("dst", tuple.Dst.String()).Msg("Fail to connect")
		_ = clientConn.Close()
		return
	}
	serverLocal, serverRemote := endpointsOf(serverConn)
	e.log.Info().Str("dst", serverRemote.String()).Msg("Connected to")

	id := uuid.New()
	seq := atomic.AddUint64(&e.nextSeq, 1)
	ep := pair.Endpoints{
		ClientLocal:  clientLocal,
		ClientRemote: clientRemote,
		ServerLocal:  serverLocal,
		ServerRemote: serverRemote,
	}
	p := pair.New(id, seq, clientConn, serverConn, ep, e.maxBuf, e.log, e.onPairDone)

	e.mu.Lock()
	e.pairs[id] = p
	e.mu.Unlock()
	atomic.AddInt64(&e.liveCount, 1)

	e.log.Debug().Str("pair", id.String()).Str("dst", tuple.Dst.String()).Msg("Forward")
	p.Start()
}

func (e *Engine) onPairDone(p *pair.Pair) {
	e.mu.Lock()
	delete(e.pairs, p.ID)
	e.mu.Unlock()
	atomic.AddInt64(&e.liveCount, -1)
}

// LivePairs reports the number of pairs this worker currently owns.
func (e *Engine) LivePairs() int64 {
	return atomic.LoadInt64(&e.liveCount)
}

// Shutdown stops this engine from adopting further connections. Live pairs
// continue to drain under their own half-close/error driven lifecycle; the
// core has no forced-teardown-on-shutdown behavior (spec §5).
func (e *Engine) Shutdown() {
	e.stopped.Store(true)
}

func endpointsOf(conn net.Conn) (local, remote addr.Endpoint) {
	local, _ = addr.ParseHostPort(conn.LocalAddr().String())
	remote, _ = addr.ParseHostPort(conn.RemoteAddr().String())
	return local, remote
}
