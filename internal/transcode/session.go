// Package transcode runs ffmpeg encoders, decoders and scalers as child
// processes fed and drained over pipes. Raw frames go in on stdin, and the
// stdout stream is cut into packets or frames by Go code.
package transcode

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/avkit/internal/bitstream"
	"github.com/jmylchreest/avkit/internal/ffmpeg"
	"github.com/jmylchreest/avkit/internal/observability"
)

// ErrClosed is returned when a session is used after Flush or Close.
var ErrClosed = errors.New("session closed")

// readChunkSize is how much of ffmpeg's stdout is read at a time.
const readChunkSize = 32 * 1024

// Packet is one encoded unit of an elementary stream.
type Packet struct {
	Data     []byte
	Keyframe bool
	// Sequence number in output order
	Index int
}

// Size returns the packet size in bytes.
func (p Packet) Size() int {
	return len(p.Data)
}

// Stats counts what went through a session.
type Stats struct {
	SessionID  string        `json:"session_id"`
	Command    string        `json:"command"`
	ItemsIn    uint64        `json:"items_in"`
	ItemsOut   uint64        `json:"items_out"`
	BytesIn    uint64        `json:"bytes_in"`
	BytesOut   uint64        `json:"bytes_out"`
	Duration   time.Duration `json:"duration"`
	CPUPercent float64       `json:"cpu_percent"`
	MemoryRSS  uint64        `json:"memory_rss_bytes"`
}

// NewSessionID returns a new time ordered session id.
func NewSessionID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// queue collects output produced by the stdout reader goroutine until the
// caller picks it up.
type queue[T any] struct {
	mu    sync.Mutex
	items []T
	err   error
	done  chan struct{}
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{done: make(chan struct{})}
}

func (q *queue[T]) push(items ...T) {
	if len(items) == 0 {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, items...)
	q.mu.Unlock()
}

// take returns and removes everything queued so far.
func (q *queue[T]) take() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *queue[T]) finish(err error) {
	q.mu.Lock()
	q.err = err
	q.mu.Unlock()
	close(q.done)
}

// wait blocks until the reader has finished and returns the rest.
func (q *queue[T]) wait() ([]T, error) {
	<-q.done
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items, q.err
}

// readErr returns the reader's error once it has stopped.
func (q *queue[T]) readErr() error {
	select {
	case <-q.done:
		q.mu.Lock()
		defer q.mu.Unlock()
		return q.err
	default:
		return nil
	}
}

// session is an ffmpeg child with a goroutine draining its stdout.
type session struct {
	id     string
	logger *slog.Logger
	proc   *ffmpeg.Process

	// set by the owner when it starts the stdout reader
	readerDone <-chan struct{}
	readerErr  func() error

	itemsIn  atomic.Uint64
	itemsOut atomic.Uint64

	closeOnce sync.Once
	closed    atomic.Bool
}

// startSession starts cmd and tags the logger with component and a new session id.
func startSession(ctx context.Context, cmd *ffmpeg.Command, logger *slog.Logger, component string) (*session, error) {
	proc, err := cmd.Start(ctx)
	if err != nil {
		return nil, err
	}
	return newSession(ctx, proc, logger, component), nil
}

// newSession wraps an already started process.
func newSession(ctx context.Context, proc *ffmpeg.Process, logger *slog.Logger, component string) *session {
	if logger == nil {
		logger = observability.LoggerFromContext(ctx)
	}
	id := NewSessionID()
	logger = observability.WithSession(observability.WithComponent(logger, component), id)
	logger.Debug("started ffmpeg",
		slog.Int("pid", proc.PID()),
		slog.String("command", proc.String()))

	return &session{id: id, logger: logger, proc: proc}
}

// attach registers the stdout reader so shutdown can wait for it.
func attach[T any](s *session, q *queue[T]) {
	s.readerDone = q.done
	s.readerErr = q.readErr
}

// write feeds raw input to ffmpeg. When the pipe breaks the child's exit
// status is the more useful error.
func (s *session) write(data []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if s.readerErr != nil {
		if err := s.readerErr(); err != nil {
			return err
		}
	}
	if _, err := s.proc.Stdin().Write(data); err != nil {
		if werr := s.finish(); werr != nil {
			return werr
		}
		return fmt.Errorf("ffmpeg stopped reading input: %w", err)
	}
	s.itemsIn.Add(1)
	return nil
}

// finish closes stdin, waits for the reader to drain stdout and reaps the child.
func (s *session) finish() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if cerr := s.proc.CloseStdin(); cerr != nil && !errors.Is(cerr, os.ErrClosed) {
			s.logger.Debug("closing ffmpeg stdin", slog.Any("error", cerr))
		}
		if s.readerDone != nil {
			<-s.readerDone
		}
		err = s.proc.Wait()

		stats := s.proc.Stats()
		s.logger.Debug("ffmpeg finished",
			slog.Uint64("items_in", s.itemsIn.Load()),
			slog.Uint64("items_out", s.itemsOut.Load()),
			slog.Uint64("bytes_in", stats.BytesWritten),
			slog.Uint64("bytes_out", stats.BytesRead),
			slog.Duration("duration", s.proc.Duration()))
	})
	return err
}

// kill stops the child without waiting for pending output.
func (s *session) kill() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		_ = s.proc.CloseStdin()
		_ = s.proc.Kill()
		if s.readerDone != nil {
			<-s.readerDone
		}
		_ = s.proc.Wait()
	})
}

func (s *session) stats() Stats {
	ps := s.proc.Stats()
	return Stats{
		SessionID:  s.id,
		Command:    s.proc.String(),
		ItemsIn:    s.itemsIn.Load(),
		ItemsOut:   s.itemsOut.Load(),
		BytesIn:    ps.BytesWritten,
		BytesOut:   ps.BytesRead,
		Duration:   s.proc.Duration(),
		CPUPercent: ps.CPUPercent,
		MemoryRSS:  ps.MemoryRSSBytes,
	}
}

// readPackets cuts ffmpeg's stdout into packets until EOF. A trailing
// partial packet is emitted as is when the stream ends.
func readPackets(s *session, r io.Reader, split bitstream.SplitFunc, keyframe func([]byte) bool, q *queue[Packet]) {
	parser := bitstream.NewParser(split)
	index := 0
	emit := func(units [][]byte) {
		packets := make([]Packet, 0, len(units))
		for _, data := range units {
			packets = append(packets, Packet{Data: data, Keyframe: keyframe(data), Index: index})
			index++
		}
		s.itemsOut.Add(uint64(len(packets)))
		q.push(packets...)
	}

	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			units, perr := parser.Feed(buf[:n])
			emit(units)
			if perr != nil {
				_, _ = io.Copy(io.Discard, r)
				q.finish(fmt.Errorf("parsing ffmpeg output: %w", perr))
				return
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			q.finish(fmt.Errorf("reading ffmpeg output: %w", err))
			return
		}
	}

	units, err := parser.Flush()
	emit(units)
	if err != nil {
		q.finish(fmt.Errorf("parsing ffmpeg output: %w", err))
		return
	}
	q.finish(nil)
}

// logProgress logs -stats progress lines until ch is closed.
func logProgress(logger *slog.Logger, ch <-chan ffmpeg.Progress) {
	for p := range ch {
		logger.Info("ffmpeg progress",
			slog.Int64("frame", p.Frame),
			slog.Float64("fps", p.FPS),
			slog.String("bitrate", p.Bitrate),
			slog.Duration("time", p.Time),
			slog.Float64("speed", p.Speed))
	}
}
