package deepgram

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Session modes, used as the "mode" label in metrics and logs.
const (
	modeListen = "listen"
	modeSpeak  = "speak"
	modeAgent  = "agent"
)

// Frame drop reasons.
const (
	dropSuppressed = "suppressed"
	dropQueueFull  = "queue_full"
	dropNotOpen    = "not_open"
	dropEncoding   = "encoding"
)

func newSessionLogger(base *slog.Logger, mode string) (string, *slog.Logger) {
	id := uuid.NewString()
	return id, base.With("mode", mode, "session", id)
}

// captureLink feeds frames from a CaptureSource into a session. Frames
// cross from the capture callback to a dedicated goroutine through a
// framePump; that goroutine encodes them and sends them on the Conn.
type captureLink struct {
	source      CaptureSource
	pump        *framePump
	unsubscribe func()
	started     bool
}

type captureSink struct {
	adapter  captureAdapter
	send     func([]byte) bool
	suppress func() bool
	closed   func() bool
	mode     string
	metrics  *Metrics
	logger   *slog.Logger
}

func (s captureSink) handle(f Frame) {
	if s.suppress != nil && s.suppress() {
		s.metrics.frameDropped(s.mode, dropSuppressed)
		return
	}
	data, err := s.adapter.encode(f)
	if err != nil {
		s.metrics.frameDropped(s.mode, dropEncoding)
		s.logger.Debug("drop frame", "error", err)
		return
	}
	if s.closed != nil && s.closed() {
		s.metrics.frameDropped(s.mode, dropNotOpen)
		return
	}
	if !s.send(data) {
		s.metrics.frameDropped(s.mode, dropNotOpen)
		return
	}
	s.metrics.frameSent(s.mode)
}

// startCaptureLink starts the source and subscribes to it.
func startCaptureLink(ctx context.Context, source CaptureSource, sink captureSink) (*captureLink, error) {
	link := &captureLink{source: source, pump: newFramePump(framePumpSize)}
	if err := source.StartCapture(ctx); err != nil {
		return nil, err
	}
	link.started = true
	sink.closed = link.pump.isClosed
	link.unsubscribe = source.Subscribe(func(f Frame) {
		if !link.pump.push(f) {
			reason := dropQueueFull
			if link.pump.isClosed() {
				reason = dropNotOpen
			}
			sink.metrics.frameDropped(sink.mode, reason)
			sink.logger.Debug("drop frame", "reason", reason)
		}
	})
	go link.pump.run(sink.handle)
	return link, nil
}

// stop releases the subscription before stopping the source, so no frame
// reaches the session afterwards.
func (l *captureLink) stop(logger *slog.Logger) {
	if l == nil {
		return
	}
	if l.unsubscribe != nil {
		l.unsubscribe()
	}
	l.pump.close()
	if l.started {
		if err := l.source.StopCapture(); err != nil {
			logger.Debug("stop capture", "error", err)
		}
	}
}

func noop()         {}
func noopErr(error) {}
