package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	channelQueueSize = 64
	maxChannelText   = 4000
)

// ChannelSender is the part of *tgbotapi.BotAPI used to post log records.
type ChannelSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// NewWithChannel returns a logger that writes JSON to w and also posts every
// record at warn level or above to chatID. The returned close func flushes
// queued records and must be called on shutdown.
func NewWithChannel(w io.Writer, level string, api ChannelSender, chatID int64) (*slog.Logger, func()) {
	sink := newChannelSink(api, chatID, os.Stderr)
	base := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	forward := slog.NewJSONHandler(sink, &slog.HandlerOptions{Level: slog.LevelWarn})
	return slog.New(fanout{base, forward}), sink.Close
}

// fanout hands each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(fanout, len(f))
	for i, h := range f {
		next[i] = h.WithAttrs(attrs)
	}
	return next
}

func (f fanout) WithGroup(name string) slog.Handler {
	next := make(fanout, len(f))
	for i, h := range f {
		next[i] = h.WithGroup(name)
	}
	return next
}

// channelSink receives one JSON record per Write and posts it to a chat from
// a single goroutine. When the queue is full records are dropped.
type channelSink struct {
	api      ChannelSender
	chatID   int64
	fallback io.Writer
	sleep    func(time.Duration)

	mu     sync.Mutex
	closed bool
	queue  chan string
	done   chan struct{}
}

func newChannelSink(api ChannelSender, chatID int64, fallback io.Writer) *channelSink {
	s := &channelSink{
		api:      api,
		chatID:   chatID,
		fallback: fallback,
		sleep:    time.Sleep,
		queue:    make(chan string, channelQueueSize),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *channelSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return len(p), nil
	}
	select {
	case s.queue <- string(p):
	default:
		fmt.Fprintf(s.fallback, "log channel queue full, dropped: %s", p)
	}
	return len(p), nil
}

func (s *channelSink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
}

func (s *channelSink) run() {
	defer close(s.done)
	for text := range s.queue {
		s.post(text)
	}
}

// post sends text, waiting out one flood limit before giving up.
func (s *channelSink) post(text string) {
	if len(text) > maxChannelText {
		text = text[:maxChannelText]
	}
	msg := tgbotapi.NewMessage(s.chatID, text)
	msg.DisableWebPagePreview = true

	_, err := s.api.Send(msg)
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) && tgErr.RetryAfter > 0 {
		s.sleep(time.Duration(tgErr.RetryAfter) * time.Second)
		_, err = s.api.Send(msg)
	}
	if err != nil {
		fmt.Fprintf(s.fallback, "log channel send failed: %v: %s", err, text)
	}
}
