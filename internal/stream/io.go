package stream

import (
	"errors"
	"io"
	"log/slog"
	"sync"
)

// ReaderSource pumps fixed-size frames from an io.Reader into a
// latest-wins slot so ReadFrame never blocks on the underlying device.
// A frame that arrives before the previous one was consumed replaces
// it; the forwarding clock always sees the freshest audio.
type ReaderSource struct {
	mu      sync.Mutex
	pending Frame
	has     bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewReaderSource starts a reader goroutine pulling FrameBytes-sized
// frames from r until r fails or Close is called.
func NewReaderSource(r io.Reader) *ReaderSource {
	s := &ReaderSource{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.pump(r)
	return s
}

// pump reads frames until the reader fails or the source is closed.
func (s *ReaderSource) pump(r io.Reader) {
	defer close(s.done)

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		frame := make(Frame, FrameBytes)
		if _, err := io.ReadFull(r, frame); err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Error("frame read failed", "error", err)
			}
			return
		}

		s.mu.Lock()
		s.pending = frame
		s.has = true
		s.mu.Unlock()
	}
}

// ReadFrame returns the most recent frame, or false when none has
// arrived since the last call. It never blocks.
func (s *ReaderSource) ReadFrame() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.has {
		return nil, false
	}
	frame := s.pending
	s.pending = nil
	s.has = false
	return frame, true
}

// Close stops the reader goroutine. The underlying reader is not
// closed; a blocked Read returns once the caller closes it.
func (s *ReaderSource) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// WriterSink writes frames to an io.Writer.
type WriterSink struct {
	w io.Writer
}

// NewWriterSink wraps w as a FrameSink.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// WriteFrame writes one frame to the underlying writer.
func (s *WriterSink) WriteFrame(frame Frame) error {
	_, err := s.w.Write(frame)
	return err
}
