// Package renamer drives the per-user rename conversation and the transfer
// pipeline it ends in.
package renamer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/digkill/TGRenameBot/internal/metrics"
	"github.com/digkill/TGRenameBot/internal/models"
	"github.com/digkill/TGRenameBot/internal/repository"
	"github.com/digkill/TGRenameBot/internal/userlock"
)

type Accounts interface {
	Ensure(ctx context.Context, telegramID int64) (*models.Account, error)
	SaveOperation(ctx context.Context, telegramID int64, expectedID string, op *models.Operation) error
	ClearOperation(ctx context.Context, telegramID int64, operationID string) error
	RecordUpload(ctx context.Context, telegramID int64, size int64) error
	SetDefaultThumbnail(ctx context.Context, telegramID int64, fileID, objectKey string) error
	SetDefaultCaption(ctx context.Context, telegramID int64, caption string) error
}

type Messenger interface {
	Send(ctx context.Context, chatID int64, r Reply) (messageID int, err error)
	Edit(ctx context.Context, chatID int64, messageID int, text string) error
}

type Files interface {
	Open(ctx context.Context, fileID string) (io.ReadCloser, error)
	Upload(ctx context.Context, req UploadRequest) error
}

// Transport is everything the machine needs from telegram.
type Transport interface {
	Messenger
	Files
}

// UploadRequest describes one outgoing file. Reader yields exactly Size bytes.
type UploadRequest struct {
	ChatID        int64
	Kind          models.FileKind
	Name          string
	Reader        io.Reader
	Size          int64
	MimeType      string
	ThumbnailPath string
	Caption       string
	Duration      int
	Width         int
	Height        int
	Title         string
	Performer     string
}

// ThumbnailBackup keeps a copy of default thumbnails outside telegram.
type ThumbnailBackup interface {
	Put(ctx context.Context, userID int64, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

type Journal interface {
	Record(ctx context.Context, log *models.TransferLog) error
}

type Options struct {
	ScratchDir       string
	ProgressInterval time.Duration
	Frames           FrameExtractor
	Backup           ThumbnailBackup
	Journal          Journal
}

type Machine struct {
	accounts  Accounts
	transport Transport
	locks     userlock.Locker
	log       *slog.Logger
	opts      Options
	now       func() time.Time

	wg      sync.WaitGroup
	mu      sync.Mutex
	running map[int64]*transfer
}

type transfer struct {
	opID   string
	cancel context.CancelFunc
}

func NewMachine(accounts Accounts, transport Transport, locks userlock.Locker, log *slog.Logger, opts Options) *Machine {
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = 5 * time.Second
	}
	return &Machine{
		accounts:  accounts,
		transport: transport,
		locks:     locks,
		log:       log,
		opts:      opts,
		now:       time.Now,
		running:   make(map[int64]*transfer),
	}
}

// Handle processes one input under the user's lock. Pipelines started here
// keep running after Handle returns and stop when ctx is cancelled.
func (m *Machine) Handle(ctx context.Context, in Input) {
	metrics.UpdatesTotal.WithLabelValues(string(in.Kind)).Inc()
	if in.At.IsZero() {
		in.At = m.now().UTC()
	}

	unlock, err := m.locks.Lock(ctx, in.UserID)
	if err != nil {
		m.log.Error("lock user", "user_id", in.UserID, "err", err)
		m.send(ctx, in.ChatID, Reply{Text: textStoreFailed})
		return
	}
	defer unlock()

	acc, err := m.accounts.Ensure(ctx, in.UserID)
	if err != nil {
		m.log.Error("load account", "user_id", in.UserID, "err", err)
		m.send(ctx, in.ChatID, Reply{Text: textStoreFailed})
		return
	}

	d := Transition(acc, in)
	if !m.apply(ctx, acc, in, d) {
		return
	}
	if d.Reply.Text != "" {
		m.send(ctx, in.ChatID, d.Reply)
	}
}

func (m *Machine) apply(ctx context.Context, acc *models.Account, in Input, d Decision) bool {
	current := ""
	if acc.Operation != nil {
		current = acc.Operation.ID
	}

	switch d.Effect {
	case EffectReply:
		if d.QuotaRejected {
			metrics.QuotaRejectionsTotal.Inc()
		}

	case EffectSave:
		if err := m.accounts.SaveOperation(ctx, in.UserID, current, d.Op); err != nil {
			return m.writeFailed(ctx, in, err)
		}

	case EffectDelete:
		if err := m.accounts.ClearOperation(ctx, in.UserID, current); err != nil {
			return m.writeFailed(ctx, in, err)
		}

	case EffectStartTransfer:
		if err := m.accounts.SaveOperation(ctx, in.UserID, current, d.Op); err != nil {
			return m.writeFailed(ctx, in, err)
		}
		m.startTransfer(ctx, acc, in.ChatID, d.Op)

	case EffectCancelTransfer:
		if !m.cancelTransfer(in.UserID, current) {
			// Nothing runs here for it, e.g. the process restarted mid-transfer.
			if err := m.accounts.ClearOperation(ctx, in.UserID, current); err != nil {
				return m.writeFailed(ctx, in, err)
			}
			m.send(ctx, in.ChatID, Reply{Text: textCancelled})
			return false
		}

	case EffectSetDefaultThumbnail:
		key := m.backupThumbnail(ctx, in.UserID, d.Value)
		if err := m.accounts.SetDefaultThumbnail(ctx, in.UserID, d.Value, key); err != nil {
			return m.writeFailed(ctx, in, err)
		}
		m.dropBackup(ctx, acc.DefaultThumbnailKey)
		if err := m.accounts.ClearOperation(ctx, in.UserID, current); err != nil {
			return m.writeFailed(ctx, in, err)
		}

	case EffectSetDefaultCaption:
		if err := m.accounts.SetDefaultCaption(ctx, in.UserID, d.Value); err != nil {
			return m.writeFailed(ctx, in, err)
		}
		if err := m.accounts.ClearOperation(ctx, in.UserID, current); err != nil {
			return m.writeFailed(ctx, in, err)
		}
	}
	return true
}

func (m *Machine) writeFailed(ctx context.Context, in Input, err error) bool {
	if errors.Is(err, repository.ErrStaleOperation) {
		metrics.StaleWritesTotal.Inc()
		m.log.Warn("stale operation write", "user_id", in.UserID, "input", in.Kind)
		m.send(ctx, in.ChatID, Reply{Text: textStale})
		return false
	}
	m.log.Error("store operation", "user_id", in.UserID, "input", in.Kind, "err", err)
	m.send(ctx, in.ChatID, Reply{Text: textStoreFailed})
	return false
}

// ClearDefaultThumbnail removes the user's default thumbnail and its backup.
func (m *Machine) ClearDefaultThumbnail(ctx context.Context, userID int64) error {
	unlock, err := m.locks.Lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	acc, err := m.accounts.Ensure(ctx, userID)
	if err != nil {
		return err
	}
	if err := m.accounts.SetDefaultThumbnail(ctx, userID, "", ""); err != nil {
		return err
	}
	m.dropBackup(ctx, acc.DefaultThumbnailKey)
	return nil
}

func (m *Machine) ClearDefaultCaption(ctx context.Context, userID int64) error {
	unlock, err := m.locks.Lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()
	if _, err := m.accounts.Ensure(ctx, userID); err != nil {
		return err
	}
	return m.accounts.SetDefaultCaption(ctx, userID, "")
}

// Wait blocks until every started pipeline has finished its cleanup.
func (m *Machine) Wait() {
	m.wg.Wait()
}

// Running reports how many pipelines this process is executing.
func (m *Machine) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}

func (m *Machine) startTransfer(ctx context.Context, acc *models.Account, chatID int64, op *models.Operation) {
	tctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.running[acc.TelegramID] = &transfer{opID: op.ID, cancel: cancel}
	m.mu.Unlock()

	snapshot := *acc
	snapshot.Operation = op.Clone()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.runTransfer(tctx, &snapshot, chatID)
	}()
}

func (m *Machine) cancelTransfer(userID int64, opID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.running[userID]
	if !ok || t.opID != opID {
		return false
	}
	t.cancel()
	return true
}

func (m *Machine) forgetTransfer(userID int64, opID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.running[userID]; ok && t.opID == opID {
		delete(m.running, userID)
	}
}

func (m *Machine) send(ctx context.Context, chatID int64, r Reply) int {
	id, err := m.transport.Send(ctx, chatID, r)
	if err != nil {
		m.log.Error("send message", "chat_id", chatID, "err", err)
	}
	return id
}
