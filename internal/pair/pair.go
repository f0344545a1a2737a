// Package pair implements ConnectionPair: the live forwarding state for one
// accepted client connection and its corresponding outbound server
// connection, including the half-close state machine and backpressure-aware
// copy loops described by the relay's forwarding engine.
package pair

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/relaycore/tcprelay/internal/addr"
	"github.com/relaycore/tcprelay/internal/buffer"
)

// halfState is the compact per-side state enum called for by the relay's
// redesign notes, replacing the original's four independent booleans with a
// two-bit mask.
type halfState uint8

const (
	stateOpen        halfState = 0
	stateReadClosed  halfState = 1 << 0
	stateWriteClosed halfState = 1 << 1
	stateClosed                = stateReadClosed | stateWriteClosed
)

// side holds the per-direction state for one half of a pair: the socket,
// its resolved endpoints, the buffer it owns (reads land here), and byte
// counters used both for the §8 invariants and the "Forward done" summary.
//
// buf is mutated by exactly one goroutine for the lifetime of the pair: the
// forward loop that reads into it (see forward below). No other goroutine
// ever calls Prepare/Commit/Data/Consume on it, so the brief p.mu section
// around those calls exists only to publish size/state to Stats and to the
// opposite-direction goroutine's half-close checks, never to arbitrate
// between two mutators.
type side struct {
	conn   net.Conn
	laddr  addr.Endpoint
	raddr  addr.Endpoint
	buf    *buffer.ForwardingBuffer
	state  halfState
	growth bool

	readCount  uint64
	writeCount uint64
}

// Pair is the unit of work owned by exactly one worker: it is created once
// an outbound connect succeeds and destroyed once both sides are fully
// closed and drained.
type Pair struct {
	ID        uuid.UUID
	Seq       uint64
	StartedAt time.Time

	Client side
	Server side

	mu        sync.Mutex
	abortOnce sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup

	log    zerolog.Logger
	onDone func(*Pair)
}

// Endpoints bundles the four addresses a pair is constructed with.
type Endpoints struct {
	ClientLocal  addr.Endpoint
	ClientRemote addr.Endpoint
	ServerLocal  addr.Endpoint
	ServerRemote addr.Endpoint
}

// New constructs a Pair around an already-connected client and server
// socket. onDone, if non-nil, is invoked once after the pair is fully
// released (both sockets closed, summary logged) so a worker can drop its
// last reference and decrement its live pair count.
func New(id uuid.UUID, seq uint64, clientConn, serverConn net.Conn, ep Endpoints, maxBuf int, log zerolog.Logger, onDone func(*Pair)) *Pair {
	p := &Pair{
		ID:        id,
		Seq:       seq,
		StartedAt: time.Now(),
		log:       log,
		onDone:    onDone,
	}
	p.Client = side{conn: clientConn, laddr: ep.ClientLocal, raddr: ep.ClientRemote, buf: buffer.New(maxBuf)}
	p.Server = side{conn: serverConn, laddr: ep.ServerLocal, raddr: ep.ServerRemote, buf: buffer.New(maxBuf)}
	return p
}

// Start launches one self-contained forward loop per direction, each owning
// its reader's ForwardingBuffer exclusively end to end (Prepare→Read→
// Commit→Data→Write→Consume), plus a watcher that releases the pair once
// both exit. This mirrors the teacher's proxy.go stream(src, dst, wg)
// goroutine-per-direction shape; unlike a split read-pump/write-pump design,
// no buffer is ever handed from one goroutine to another mid-flight.
func (p *Pair) Start() {
	p.wg.Add(2)
	go p.forward(&p.Client, &p.Server, "client->server")
	go p.forward(&p.Server, &p.Client, "server->client")
	go p.awaitDone()
}

// forward is one direction's complete copy loop: read into reader's own
// buffer, write everything read out to writer, and on reader EOF perform the
// read-closed/write-closed half-close transitions from spec §4.4. Because
// reader.buf is touched by no other goroutine, Consume can never run behind
// a concurrently in-flight Prepare/Commit for the same storage/size pair.
func (p *Pair) forward(reader, writer *side, dir string) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		region := reader.buf.Prepare(reader.growth)
		p.mu.Unlock()

		n, err := reader.conn.Read(region)

		if n > 0 {
			p.mu.Lock()
			reader.buf.Commit(n)
			reader.readCount += uint64(n)
			reader.growth = n == len(region)
			p.mu.Unlock()
			p.log.Trace().Str("pair", p.ID.String()).Str("dir", dir).Int("n", n).Msg("Read")

			if werr := p.drain(reader, writer, dir); werr != nil {
				p.abort("Fail to write: " + werr.Error())
				return
			}
		}

		if err != nil {
			if err == io.EOF {
				p.closeReadSide(reader, writer)
				return
			}
			p.abort("Fail to read: " + err.Error())
			return
		}
	}
}

// drain writes out everything currently buffered in reader.buf, blocking
// until the socket accepts it all or errors. It is the only place Data and
// Consume are called, always from the same goroutine that called Commit
// above. Consume runs under p.mu, like Commit, so the buffer size is
// published consistently; Data needs no lock since no other goroutine
// mutates the buffer.
func (p *Pair) drain(reader, writer *side, dir string) error {
	for !reader.buf.Empty() {
		data := reader.buf.Data()
		n, err := writer.conn.Write(data)
		if n > 0 {
			p.mu.Lock()
			reader.buf.Consume(n)
			writer.writeCount += uint64(n)
			p.mu.Unlock()
			p.log.Trace().Str("pair", p.ID.String()).Str("dir", dir).Int("n", n).Msg("Write")
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// closeReadSide performs the read-closed/drained transitions of spec §4.4
// once reader has observed EOF: reader's read half is marked and shut down,
// and writer's write half is shut down exactly once now that reader.buf has
// already been fully drained by forward's call to drain above.
func (p *Pair) closeReadSide(reader, writer *side) {
	p.mu.Lock()
	reader.state |= stateReadClosed
	p.mu.Unlock()
	shutdownRead(reader.conn)
	p.log.Debug().Str("pair", p.ID.String()).Msg("Closed by peer")

	p.mu.Lock()
	already := writer.state&stateWriteClosed != 0
	p.mu.Unlock()
	if !already {
		shutdownWrite(writer.conn)
		p.mu.Lock()
		writer.state |= stateWriteClosed
		p.mu.Unlock()
	}
}

// abort forces both sockets closed and marks every half-flag done. Closing
// the sockets unblocks whichever goroutine is parked in a Read or Write
// syscall on them, so it can observe its own error and return without
// needing a separate wake signal. Idempotent: only the first caller logs
// and closes.
func (p *Pair) abort(reason string) {
	p.abortOnce.Do(func() {
		p.mu.Lock()
		p.Client.state = stateClosed
		p.Server.state = stateClosed
		p.mu.Unlock()

		p.log.Warn().Str("pair", p.ID.String()).Msg(reason)
		_ = p.Client.conn.Close()
		_ = p.Server.conn.Close()
	})
}

func (p *Pair) awaitDone() {
	p.wg.Wait()
	p.release()
}

// release closes both sockets (idempotent with abort) and emits the
// "Forward done" summary required by the relay's log contract.
func (p *Pair) release() {
	p.closeOnce.Do(func() {
		_ = p.Client.conn.Close()
		_ = p.Server.conn.Close()
	})

	p.log.Info().
		Str("pair", p.ID.String()).
		Uint64("seq", p.Seq).
		Uint64("in_bytes", p.Client.readCount).
		Uint64("out_bytes", p.Client.writeCount).
		Float64("dur", time.Since(p.StartedAt).Seconds()).
		Msg("Forward done")

	if p.onDone != nil {
		p.onDone(p)
	}
}

// Stats returns the bytes forwarded client→server (in) and server→client
// (out) so far. Safe to call concurrently; most useful once Done has fired.
func (p *Pair) Stats() (in, out uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Client.readCount, p.Client.writeCount
}

// Done returns a channel closed once both forward loops have exited. The
// release step (closing both sockets, the summary log, onDone) runs on its
// own goroutine and may still be in progress when the channel closes.
func (p *Pair) Done() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(ch)
	}()
	return ch
}

func shutdownRead(c net.Conn) {
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.CloseRead()
	}
}

func shutdownWrite(c net.Conn) {
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}
}
