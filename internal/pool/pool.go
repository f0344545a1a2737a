// Package pool implements WorkerPool and its dispatcher: a fixed set of
// ForwardingEngine workers, plus the accept-loop-to-worker handoff that
// distributes newly accepted connections across them.
//
// The spec's wake-fd notification (a 64-bit (listener_fd, client_fd) value
// written into a cross-thread-writable, reactor-readable primitive) is
// replaced here by a buffered Go channel per worker: spec §9 explicitly
// allows "push a small record into a per-worker MPSC queue and wake with a
// semaphore/event" as an equivalent, and a channel is exactly that,
// idiomatically, in Go. Delivery is FIFO per worker, matching the contract.
package pool

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaycore/tcprelay/internal/config"
	"github.com/relaycore/tcprelay/internal/engine"
	"github.com/relaycore/tcprelay/internal/sockopt"
)

// dispatchBacklog bounds each worker's handoff channel. A send blocks once
// full, which is the channel equivalent of the wake primitive's own
// backpressure; no connections are dropped.
const dispatchBacklog = 256

type dispatchJob struct {
	conn  net.Conn
	tuple config.Tuple
}

// WorkerPool owns a fixed set of engines and the listeners attached to it.
type WorkerPool struct {
	log     zerolog.Logger
	workers []*engine.Engine
	jobs    []chan dispatchJob
	rrIndex atomic.Uint64

	mu        sync.Mutex
	listeners []net.Listener
	wg        sync.WaitGroup
}

// New creates max(1, n) worker engines, each with its own dispatch channel;
// the consumer goroutines are launched by Start. connectTimeout is passed
// through to every engine; zero selects engine.DefaultConnectTimeout.
func New(n int, log zerolog.Logger, maxBufferBytes int, connectTimeout time.Duration) *WorkerPool {
	if n < 1 {
		n = 1
	}
	p := &WorkerPool{
		log:     log,
		workers: make([]*engine.Engine, n),
		jobs:    make([]chan dispatchJob, n),
	}
	for i := 0; i < n; i++ {
		p.workers[i] = engine.New(i, log, maxBufferBytes, connectTimeout)
		p.jobs[i] = make(chan dispatchJob, dispatchBacklog)
	}
	return p
}

// Start launches each worker's consumer goroutine. Must be called once
// before AttachListener.
func (p *WorkerPool) Start() {
	for i := range p.workers {
		p.wg.Add(1)
		go p.runWorker(i)
	}
}

func (p *WorkerPool) runWorker(i int) {
	defer p.wg.Done()
	w := p.workers[i]
	for job := range p.jobs[i] {
		// AdoptAccepted's own state (the pairs map, live count) is
		// mutex/atomic-guarded, so fanning connect+install out onto its own
		// goroutine per job is safe and avoids a slow outbound connect on
		// one connection head-of-line-blocking every other connection
		// dispatched to the same worker.
		go w.AdoptAccepted(job.conn, job.tuple)
	}
}

// AttachListener creates a listening socket for tuple.Listen and starts its
// accept loop. Bind/listen failures are returned so the caller can fail
// fast at startup per spec §7. It returns the bound address, which for a
// tuple requesting port 0 is only known after the bind succeeds.
func (p *WorkerPool) AttachListener(tuple config.Tuple) (net.Addr, error) {
	ln, err := sockopt.CreateListener(tuple.Listen, true)
	if err != nil {
		return nil, fmt.Errorf("pool: attach listener %s: %w", tuple.Listen, err)
	}
	p.mu.Lock()
	p.listeners = append(p.listeners, ln)
	p.mu.Unlock()

	p.wg.Add(1)
	go p.acceptLoop(ln, tuple)
	return ln.Addr(), nil
}

// acceptLoop is the single accept loop for one listener; it avoids
// thundering-herd accept contention by itself being the only reader of
// ln.Accept, then fans work out to workers via round-robin dispatch.
func (p *WorkerPool) acceptLoop(ln net.Listener, tuple config.Tuple) {
	defer p.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if isClosedListenerErr(err) {
				return
			}
			p.log.Warn().Err(err).Str("listen", tuple.Listen.String()).Msg("accept failed")
			continue
		}
		idx := p.nextWorker()
		p.jobs[idx] <- dispatchJob{conn: conn, tuple: tuple}
	}
}

// nextWorker implements the round-robin dispatch in spec §4.6: advance
// rrIndex, and when it lands back on worker 0 skip to the next one, so long
// as there is more than one worker. Worker 0 is therefore never chosen when
// N > 1; the accept loops themselves run on their own goroutines.
func (p *WorkerPool) nextWorker() int {
	n := uint64(len(p.workers))
	idx := p.rrIndex.Add(1) % n
	if idx == 0 && n > 1 {
		idx = p.rrIndex.Add(1) % n
	}
	return int(idx)
}

// Shutdown closes every listener (stopping accept loops), stops engines
// from adopting further work, then closes every worker's dispatch channel
// (stopping consumer goroutines) and waits for those goroutines. It does not
// forcibly tear down live pairs; see Engine.Shutdown.
func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	listeners := p.listeners
	p.listeners = nil
	p.mu.Unlock()

	for _, ln := range listeners {
		_ = ln.Close()
	}
	for _, w := range p.workers {
		w.Shutdown()
	}
	for _, ch := range p.jobs {
		close(ch)
	}
	p.wg.Wait()
}

// Workers exposes the underlying engines, mainly for tests that assert
// fan-out distribution across workers.
func (p *WorkerPool) Workers() []*engine.Engine {
	return p.workers
}

func isClosedListenerErr(err error) bool {
	return strings.Contains(err.Error(), "use of closed network connection")
}
