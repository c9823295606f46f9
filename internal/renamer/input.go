package renamer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/digkill/TGRenameBot/internal/models"
)

type InputKind string

const (
	InputFile                InputKind = "file"
	InputPhoto               InputKind = "photo"
	InputText                InputKind = "text"
	InputSkipThumbnail       InputKind = "skip_thumbnail"
	InputSkipCaption         InputKind = "skip_caption"
	InputRename              InputKind = "rename"
	InputAddThumbnail        InputKind = "add_thumbnail"
	InputAddCaption          InputKind = "add_caption"
	InputCancel              InputKind = "cancel"
	InputSetDefaultThumbnail InputKind = "set_default_thumbnail"
	InputSetDefaultCaption   InputKind = "set_default_caption"
	// InputUnsupported is a message with nothing the bot can use, such as a
	// sticker or a voice note.
	InputUnsupported         InputKind = "unsupported"
)

// InputKinds lists every kind Transition understands.
var InputKinds = []InputKind{
	InputFile, InputPhoto, InputText, InputSkipThumbnail, InputSkipCaption,
	InputRename, InputAddThumbnail, InputAddCaption, InputCancel,
	InputSetDefaultThumbnail, InputSetDefaultCaption, InputUnsupported,
}

// Input is one user event, already stripped of transport details.
type Input struct {
	Kind   InputKind
	UserID int64
	ChatID int64
	Text   string
	File   *models.SourceFile
	At     time.Time
}

type Menu int

const (
	MenuNone Menu = iota
	MenuOperation
)

// Reply is a message sent back to the user. An empty Text sends nothing.
type Reply struct {
	Text string
	Menu Menu
}

type Effect int

const (
	EffectReply Effect = iota
	EffectSave
	EffectDelete
	EffectStartTransfer
	EffectCancelTransfer
	EffectSetDefaultThumbnail
	EffectSetDefaultCaption
)

// Decision is what Transition wants done. Op is the operation to store for
// EffectSave and EffectStartTransfer; Value carries the thumbnail file id or
// caption for the default-setting effects.
type Decision struct {
	Effect        Effect
	Op            *models.Operation
	Value         string
	Reply         Reply
	QuotaRejected bool
}

// FloodWaitError is returned by transports when telegram asks us to slow down.
type FloodWaitError struct {
	RetryAfter time.Duration
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("flood wait: retry after %s", e.RetryAfter)
}

func (e *FloodWaitError) Seconds() int {
	secs := int(e.RetryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

const maxNameBytes = 255

var ErrInvalidName = errors.New("invalid file name")

type NameError struct {
	Reason string
}

func (e *NameError) Error() string   { return "invalid file name: " + e.Reason }
func (e *NameError) Is(t error) bool { return t == ErrInvalidName }

// ValidateName trims raw and rejects names that cannot be a single path
// element. Everything else is kept verbatim, extension included.
func ValidateName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	switch {
	case name == "":
		return "", &NameError{Reason: "the name is empty"}
	case name == "." || name == "..":
		return "", &NameError{Reason: fmt.Sprintf("%q is reserved", name)}
	case strings.ContainsAny(name, "/\\\x00"):
		return "", &NameError{Reason: `slashes are not allowed`}
	case len(name) > maxNameBytes:
		return "", &NameError{Reason: fmt.Sprintf("the name is longer than %d bytes", maxNameBytes)}
	}
	return name, nil
}
