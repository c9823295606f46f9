package progress

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Editor pushes new status text, usually by editing one chat message.
type Editor func(ctx context.Context, text string) error

// Reporter turns byte counts into at most one status edit per interval,
// plus a final edit at completion. Edit failures never reach the caller.
type Reporter struct {
	phase   string
	total   int64
	edit    Editor
	log     *slog.Logger
	limiter *rate.Limiter
	now     func() time.Time
	start   time.Time

	mu       sync.Mutex
	done     int64
	lastText string
	finished bool
}

func NewReporter(phase string, total int64, interval time.Duration, edit Editor, log *slog.Logger) *Reporter {
	return newReporter(phase, total, interval, edit, log, time.Now)
}

func newReporter(phase string, total int64, interval time.Duration, edit Editor, log *slog.Logger, now func() time.Time) *Reporter {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Reporter{
		phase:   phase,
		total:   total,
		edit:    edit,
		log:     log,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		now:     now,
		start:   now(),
	}
}

// Update records that done bytes have been transferred so far.
func (r *Reporter) Update(ctx context.Context, done int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	if done < r.done {
		done = r.done
	}
	if r.total > 0 && done >= r.total {
		r.finishLocked(ctx)
		return
	}
	r.done = done
	if !r.limiter.AllowN(r.now(), 1) {
		return
	}
	r.pushLocked(ctx)
}

// Finish forces the 100% render. Calling it more than once is a no-op.
func (r *Reporter) Finish(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	r.finishLocked(ctx)
}

func (r *Reporter) finishLocked(ctx context.Context) {
	r.finished = true
	if r.total > 0 {
		r.done = r.total
	} else {
		// the size was not declared up front, so what arrived is the total
		r.total = r.done
	}
	r.pushLocked(ctx)
}

func (r *Reporter) pushLocked(ctx context.Context) {
	text := Render(Snapshot{
		Phase:    r.phase,
		Done:     r.done,
		Total:    r.total,
		Elapsed:  r.now().Sub(r.start),
		Complete: r.finished,
	})
	if text == r.lastText {
		return
	}
	r.lastText = text
	if err := r.edit(ctx, text); err != nil {
		r.log.Debug("progress edit failed", "phase", r.phase, "err", err)
	}
}

// Reader counts bytes read from an underlying reader.
type Reader struct {
	r      io.Reader
	n      int64
	onRead func(total int64)
}

func NewReader(r io.Reader, onRead func(total int64)) *Reader {
	return &Reader{r: r, onRead: onRead}
}

func (p *Reader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.n += int64(n)
		if p.onRead != nil {
			p.onRead(p.n)
		}
	}
	return n, err
}

func (p *Reader) N() int64 {
	return p.n
}
