package renamer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/digkill/TGRenameBot/internal/models"
)

const (
	maxThumbnailBytes = 1 << 20
	placeholderSide   = 320
)

type thumbnailSource string

const (
	thumbCustom      thumbnailSource = "custom"
	thumbDefault     thumbnailSource = "default"
	thumbBackup      thumbnailSource = "default_backup"
	thumbEmbedded    thumbnailSource = "embedded"
	thumbFrame       thumbnailSource = "frame"
	thumbPlaceholder thumbnailSource = "placeholder"
	thumbNone        thumbnailSource = "none"
)

// FrameExtractor writes a still frame of a video as a JPEG.
type FrameExtractor interface {
	ExtractFrame(ctx context.Context, videoPath, outPath string) error
}

// FFmpeg extracts frames with the ffmpeg binary.
type FFmpeg struct {
	bin string
}

func NewFFmpeg(bin string) *FFmpeg {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpeg{bin: bin}
}

func (f *FFmpeg) ExtractFrame(ctx context.Context, videoPath, outPath string) error {
	bin, err := exec.LookPath(f.bin)
	if err != nil {
		return fmt.Errorf("find ffmpeg: %w", err)
	}
	cmd := exec.CommandContext(ctx, bin,
		"-y", "-loglevel", "error",
		"-ss", "00:00:01",
		"-i", videoPath,
		"-vframes", "1",
		"-vf", fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", placeholderSide, placeholderSide),
		outPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(string(out)))
	}
	if _, err := os.Stat(outPath); err != nil {
		return fmt.Errorf("ffmpeg produced no frame: %w", err)
	}
	return nil
}

// resolveThumbnail walks the thumbnail tiers and returns the first one that
// produced a file in dir.
func (m *Machine) resolveThumbnail(ctx context.Context, acc *models.Account, op *models.Operation, source, dir string, log *slog.Logger) (string, thumbnailSource) {
	path := filepath.Join(dir, "thumb.jpg")

	fromTelegram := func(fileID string, from thumbnailSource) bool {
		if fileID == "" {
			return false
		}
		if err := m.fetchThumbnail(ctx, fileID, path); err != nil {
			log.Warn("fetch thumbnail", "source", from, "err", err)
			return false
		}
		return true
	}

	if fromTelegram(op.CustomThumbnailID, thumbCustom) {
		return path, thumbCustom
	}
	if fromTelegram(acc.DefaultThumbnailID, thumbDefault) {
		return path, thumbDefault
	}
	if acc.DefaultThumbnailKey != "" && m.opts.Backup != nil {
		data, err := m.opts.Backup.Get(ctx, acc.DefaultThumbnailKey)
		if err == nil {
			err = os.WriteFile(path, data, 0o644)
		}
		if err == nil {
			return path, thumbBackup
		}
		log.Warn("restore thumbnail backup", "key", acc.DefaultThumbnailKey, "err", err)
	}
	if fromTelegram(op.File.ThumbnailID, thumbEmbedded) {
		return path, thumbEmbedded
	}
	if op.File.Kind == models.KindVideo && m.opts.Frames != nil {
		if err := m.opts.Frames.ExtractFrame(ctx, source, path); err != nil {
			log.Warn("extract video frame", "err", err)
		} else {
			return path, thumbFrame
		}
	}

	data, err := placeholder()
	if err == nil {
		err = os.WriteFile(path, data, 0o644)
	}
	if err != nil {
		log.Warn("write placeholder thumbnail", "err", err)
		return "", thumbNone
	}
	return path, thumbPlaceholder
}

func (m *Machine) fetchThumbnail(ctx context.Context, fileID, path string) error {
	data, err := m.readSmallFile(ctx, fileID)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (m *Machine) readSmallFile(ctx context.Context, fileID string) ([]byte, error) {
	rc, err := m.transport.Open(ctx, fileID)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxThumbnailBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxThumbnailBytes {
		return nil, fmt.Errorf("thumbnail larger than %d bytes", maxThumbnailBytes)
	}
	return data, nil
}

// backupThumbnail copies a new default thumbnail to object storage and
// returns its key, or "" when no backup is configured or the copy failed.
func (m *Machine) backupThumbnail(ctx context.Context, userID int64, fileID string) string {
	if m.opts.Backup == nil {
		return ""
	}
	data, err := m.readSmallFile(ctx, fileID)
	if err != nil {
		m.log.Warn("download default thumbnail", "user_id", userID, "err", err)
		return ""
	}
	key, err := m.opts.Backup.Put(ctx, userID, data)
	if err != nil {
		m.log.Warn("backup default thumbnail", "user_id", userID, "err", err)
		return ""
	}
	return key
}

func (m *Machine) dropBackup(ctx context.Context, key string) {
	if key == "" || m.opts.Backup == nil {
		return
	}
	if err := m.opts.Backup.Delete(ctx, key); err != nil {
		m.log.Warn("delete thumbnail backup", "key", key, "err", err)
	}
}

var placeholder = sync.OnceValues(func() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, placeholderSide, placeholderSide))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 73, G: 109, B: 137, A: 255}}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
})
