package telegram

import (
	"fmt"
	"path/filepath"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/TGRenameBot/internal/models"
	"github.com/digkill/TGRenameBot/internal/renamer"
)

const (
	cbRename            = "rename_file"
	cbAddThumbnail      = "add_thumbnail"
	cbAddCaption        = "add_caption"
	cbCancelOperation   = "cancel_operation"
	cbCheckSubscription = "check_subscription"
)

// commandInputs are the commands that feed the operation state machine.
var commandInputs = map[string]renamer.InputKind{
	"cancel":         renamer.InputCancel,
	"skip_thumbnail": renamer.InputSkipThumbnail,
	"skip_caption":   renamer.InputSkipCaption,
	"set_thumb":      renamer.InputSetDefaultThumbnail,
	"cancel_thumb":   renamer.InputCancel,
	"set_caption":    renamer.InputSetDefaultCaption,
	"cancel_caption": renamer.InputCancel,
}

var callbackInputs = map[string]renamer.InputKind{
	cbRename:          renamer.InputRename,
	cbAddThumbnail:    renamer.InputAddThumbnail,
	cbAddCaption:      renamer.InputAddCaption,
	cbCancelOperation: renamer.InputCancel,
}

// inputFromMessage maps a non-command message to a state machine input.
// Messages carrying nothing usable map to InputUnsupported and report false.
func inputFromMessage(msg *tgbotapi.Message) (renamer.Input, bool) {
	in := renamer.Input{
		UserID: msg.From.ID,
		ChatID: msg.Chat.ID,
		At:     msg.Time().UTC(),
	}
	if file := sourceFile(msg); file != nil {
		in.Kind = renamer.InputFile
		if file.Kind == models.KindPhoto {
			in.Kind = renamer.InputPhoto
		}
		in.File = file
		return in, true
	}
	if msg.Text != "" {
		in.Kind = renamer.InputText
		in.Text = msg.Text
		return in, true
	}
	in.Kind = renamer.InputUnsupported
	return in, false
}

func sourceFile(msg *tgbotapi.Message) *models.SourceFile {
	switch {
	case msg.Document != nil:
		d := msg.Document
		return &models.SourceFile{
			FileID:      d.FileID,
			UniqueID:    d.FileUniqueID,
			Kind:        models.KindDocument,
			Name:        fallbackName(d.FileName, "file", d.FileUniqueID, ""),
			MimeType:    d.MimeType,
			Size:        int64(d.FileSize),
			ThumbnailID: thumbnailID(d.Thumbnail),
		}
	case msg.Video != nil:
		v := msg.Video
		return &models.SourceFile{
			FileID:      v.FileID,
			UniqueID:    v.FileUniqueID,
			Kind:        models.KindVideo,
			Name:        fallbackName(v.FileName, "video", v.FileUniqueID, ".mp4"),
			MimeType:    v.MimeType,
			Size:        int64(v.FileSize),
			ThumbnailID: thumbnailID(v.Thumbnail),
			Duration:    v.Duration,
			Width:       v.Width,
			Height:      v.Height,
		}
	case msg.Audio != nil:
		a := msg.Audio
		return &models.SourceFile{
			FileID:      a.FileID,
			UniqueID:    a.FileUniqueID,
			Kind:        models.KindAudio,
			Name:        fallbackName(a.FileName, "audio", a.FileUniqueID, ".mp3"),
			MimeType:    a.MimeType,
			Size:        int64(a.FileSize),
			ThumbnailID: thumbnailID(a.Thumbnail),
			Duration:    a.Duration,
			Title:       a.Title,
			Performer:   a.Performer,
		}
	case len(msg.Photo) > 0:
		p := msg.Photo[len(msg.Photo)-1]
		return &models.SourceFile{
			FileID:   p.FileID,
			UniqueID: p.FileUniqueID,
			Kind:     models.KindPhoto,
			Name:     fmt.Sprintf("photo_%s.jpg", msg.Time().UTC().Format("20060102_150405")),
			MimeType: "image/jpeg",
			Size:     int64(p.FileSize),
			Width:    p.Width,
			Height:   p.Height,
		}
	}
	return nil
}

func fallbackName(name, prefix, uniqueID, ext string) string {
	if name = filepath.Base(name); name != "" && name != "." && name != "/" {
		return name
	}
	if uniqueID == "" {
		uniqueID = fmt.Sprintf("%d", time.Now().Unix())
	}
	return prefix + "_" + uniqueID + ext
}

func thumbnailID(p *tgbotapi.PhotoSize) string {
	if p == nil {
		return ""
	}
	return p.FileID
}
