package renamer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/digkill/TGRenameBot/internal/metrics"
	"github.com/digkill/TGRenameBot/internal/models"
	"github.com/digkill/TGRenameBot/internal/progress"
	"github.com/digkill/TGRenameBot/internal/repository"
)

const cleanupTimeout = 15 * time.Second

// runTransfer downloads the operation's file, renames it, uploads it back and
// always removes the scratch directory and the stored operation afterwards.
func (m *Machine) runTransfer(ctx context.Context, acc *models.Account, chatID int64) {
	op := acc.Operation
	userID := acc.TelegramID
	log := m.log.With("user_id", userID, "op_id", op.ID)
	dir := filepath.Join(m.opts.ScratchDir, fmt.Sprintf("%d-%s", userID, op.ID))
	started := m.now()

	metrics.ActiveTransfers.Inc()
	defer metrics.ActiveTransfers.Dec()

	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn("remove scratch dir", "dir", dir, "err", err)
		}
		m.forgetTransfer(userID, op.ID)
		m.releaseOperation(context.WithoutCancel(ctx), log, userID, op.ID)
	}()

	status := &statusMessage{m: m, chatID: chatID}
	err := m.transfer(ctx, acc, op, dir, status, log)

	state, text := outcome(op, err)
	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if serr := status.set(finalCtx, text); serr != nil {
		log.Warn("report transfer outcome", "err", serr)
	}

	metrics.TransfersTotal.WithLabelValues(string(state)).Inc()
	metrics.TransferDuration.WithLabelValues(string(op.File.Kind)).Observe(m.now().Sub(started).Seconds())
	if err != nil {
		log.Warn("transfer finished", "status", state, "err", err)
	} else {
		log.Info("transfer finished", "status", state, "size", op.File.Size)
	}

	if m.opts.Journal != nil {
		entry := &models.TransferLog{
			UserID:       userID,
			OperationID:  op.ID,
			Kind:         op.File.Kind,
			OriginalName: op.File.Name,
			NewName:      op.NewName,
			SizeBytes:    op.File.Size,
			Status:       state,
			CreatedAt:    m.now().UTC(),
		}
		if err != nil {
			entry.Error = err.Error()
		}
		if jerr := m.opts.Journal.Record(finalCtx, entry); jerr != nil {
			log.Error("record transfer", "err", jerr)
		}
	}
}

func (m *Machine) transfer(ctx context.Context, acc *models.Account, op *models.Operation, dir string, status *statusMessage, log *slog.Logger) error {
	if err := status.set(ctx, textPreparing); err != nil {
		log.Debug("send status message", "err", err)
	}

	inDir := filepath.Join(dir, "in")
	outDir := filepath.Join(dir, "out")
	for _, d := range []string{inDir, outDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create scratch dir: %w", err)
		}
	}

	source := filepath.Join(inDir, "source"+filepath.Ext(op.File.Name))
	downloaded, err := m.download(ctx, op.File, source, status, log)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	thumbPath := ""
	if op.File.Kind != models.KindPhoto {
		var from thumbnailSource
		thumbPath, from = m.resolveThumbnail(ctx, acc, op, source, dir, log)
		metrics.ThumbnailSourceTotal.WithLabelValues(string(from)).Inc()
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	target := filepath.Join(outDir, op.NewName)
	if err := os.Rename(source, target); err != nil {
		return fmt.Errorf("rename file: %w", err)
	}

	if err := m.upload(ctx, acc, op, target, thumbPath, status, log); err != nil {
		return err
	}

	// quota is charged by the declared size; files sent without one are
	// charged by what was actually downloaded
	debit := op.File.Size
	if debit <= 0 {
		debit = downloaded
	}
	if err := m.accounts.RecordUpload(context.WithoutCancel(ctx), acc.TelegramID, debit); err != nil {
		log.Error("record upload", "err", err)
	}
	return nil
}

func (m *Machine) download(ctx context.Context, file *models.SourceFile, path string, status *statusMessage, log *slog.Logger) (int64, error) {
	rc, err := m.transport.Open(ctx, file.FileID)
	if err != nil {
		return 0, fmt.Errorf("download: %w", err)
	}
	defer rc.Close()

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create scratch file: %w", err)
	}
	defer f.Close()

	reporter := progress.NewReporter(progress.PhaseDownload, file.Size, m.opts.ProgressInterval, status.set, log)
	reader := progress.NewReader(rc, func(n int64) { reporter.Update(ctx, n) })
	_, err = io.Copy(f, reader)
	metrics.TransferBytesTotal.WithLabelValues("download").Add(float64(reader.N()))
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("download: %w", err)
	}
	reporter.Finish(ctx)
	return reader.N(), f.Close()
}

func (m *Machine) upload(ctx context.Context, acc *models.Account, op *models.Operation, path, thumbPath string, status *statusMessage, log *slog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open renamed file: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat renamed file: %w", err)
	}

	reporter := progress.NewReporter(progress.PhaseUpload, info.Size(), m.opts.ProgressInterval, status.set, log)
	reader := progress.NewReader(f, func(n int64) { reporter.Update(ctx, n) })
	err = m.transport.Upload(ctx, UploadRequest{
		ChatID:        status.chatID,
		Kind:          op.File.Kind,
		Name:          op.NewName,
		Reader:        reader,
		Size:          info.Size(),
		MimeType:      op.File.MimeType,
		ThumbnailPath: thumbPath,
		Caption:       captionFor(acc, op),
		Duration:      op.File.Duration,
		Width:         op.File.Width,
		Height:        op.File.Height,
		Title:         op.File.Title,
		Performer:     op.File.Performer,
	})
	metrics.TransferBytesTotal.WithLabelValues("upload").Add(float64(reader.N()))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("upload: %w", err)
	}
	reporter.Finish(ctx)
	return nil
}

// releaseOperation removes op from the account once the pipeline is over. It
// is fenced by op's id, so a newer operation is never touched.
func (m *Machine) releaseOperation(ctx context.Context, log *slog.Logger, userID int64, opID string) {
	ctx, cancel := context.WithTimeout(ctx, cleanupTimeout)
	defer cancel()

	unlock, err := m.locks.Lock(ctx, userID)
	if err != nil {
		log.Error("lock user for cleanup", "err", err)
		return
	}
	defer unlock()

	err = m.accounts.ClearOperation(ctx, userID, opID)
	switch {
	case errors.Is(err, repository.ErrStaleOperation):
		log.Debug("operation already replaced")
	case err != nil:
		log.Error("clear operation", "err", err)
	}
}

func captionFor(acc *models.Account, op *models.Operation) string {
	if op.CustomCaption != nil {
		return *op.CustomCaption
	}
	if acc.DefaultCaption != "" {
		return acc.DefaultCaption
	}
	return fmt.Sprintf(textGeneratedCaption, op.NewName)
}

func outcome(op *models.Operation, err error) (models.TransferStatus, string) {
	var flood *FloodWaitError
	switch {
	case err == nil:
		return models.TransferSucceeded, fmt.Sprintf(textDone, op.NewName)
	case errors.As(err, &flood):
		return models.TransferThrottled, fmt.Sprintf(textFloodWait, flood.Seconds())
	case errors.Is(err, context.Canceled):
		return models.TransferCancelled, textCancelled
	default:
		return models.TransferFailed, fmt.Sprintf(textFailed, err)
	}
}

// statusMessage is the single chat message a pipeline keeps editing.
type statusMessage struct {
	m      *Machine
	chatID int64
	id     int
}

func (s *statusMessage) set(ctx context.Context, text string) error {
	if s.id == 0 {
		id, err := s.m.transport.Send(ctx, s.chatID, Reply{Text: text})
		if err != nil {
			return err
		}
		s.id = id
		return nil
	}
	return s.m.transport.Edit(ctx, s.chatID, s.id, text)
}
