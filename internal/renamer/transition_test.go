package renamer

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/TGRenameBot/internal/models"
)

const gib = int64(1) << 30

var allStates = []models.OperationState{
	models.StateNone,
	models.StateAwaitingName,
	models.StateAwaitingThumbnail,
	models.StateAwaitingCaption,
	models.StateAwaitingDefaultThumbnail,
	models.StateAwaitingDefaultCaption,
	models.StateTransferring,
}

func freeAccount(used int64) *models.Account {
	return &models.Account{
		TelegramID:         1,
		Plan:               models.PlanFree,
		DailyUploadedBytes: used,
		DailyLimitBytes:    5 * gib,
		ParallelLimit:      1,
	}
}

func video(name string, size int64) *models.SourceFile {
	return &models.SourceFile{FileID: "vid-" + name, Kind: models.KindVideo, Name: name, Size: size}
}

func withOperation(acc *models.Account, state models.OperationState) *models.Account {
	op := &models.Operation{ID: "op-1", State: state}
	if state != models.StateAwaitingDefaultThumbnail && state != models.StateAwaitingDefaultCaption {
		op.File = video("a.mkv", gib)
	}
	acc.Operation = op
	return acc
}

func inputOf(kind InputKind) Input {
	in := Input{Kind: kind, UserID: 1, ChatID: 1, Text: "movie.mkv", At: time.Unix(100, 0)}
	switch kind {
	case InputFile:
		in.File = video("b.mp4", gib)
	case InputPhoto:
		in.File = &models.SourceFile{FileID: "photo-1", Kind: models.KindPhoto, Name: "photo.jpg", Size: 1024}
	}
	return in
}

func TestTransitionIsTotal(t *testing.T) {
	for _, state := range append([]models.OperationState{""}, allStates...) {
		for _, kind := range InputKinds {
			acc := freeAccount(0)
			if state != "" {
				acc = withOperation(acc, state)
			}
			d := Transition(acc, inputOf(kind))
			name := string(state) + "/" + string(kind)
			if d.Effect == EffectStartTransfer {
				require.NotNil(t, d.Op, name)
				assert.Equal(t, models.StateTransferring, d.Op.State, name)
				continue
			}
			assert.NotEmpty(t, d.Reply.Text, name)
			if d.Effect == EffectSave {
				require.NotNil(t, d.Op, name)
				assert.NotEmpty(t, d.Op.ID, name)
			}
		}
	}
}

func TestTransitionDoesNotMutateAccount(t *testing.T) {
	for _, state := range allStates {
		for _, kind := range InputKinds {
			acc := withOperation(freeAccount(0), state)
			before := acc.Operation.Clone()
			Transition(acc, inputOf(kind))
			assert.Equal(t, before, acc.Operation, "%s/%s", state, kind)
		}
	}
}

func TestIntakeRejectsFileOverQuota(t *testing.T) {
	acc := freeAccount(gib*9/2)
	in := inputOf(InputFile)
	in.File = video("big.mkv", gib)

	d := Transition(acc, in)
	assert.Equal(t, EffectReply, d.Effect)
	assert.True(t, d.QuotaRejected)
	assert.Nil(t, d.Op)
	assert.Contains(t, d.Reply.Text, "daily upload limit")
}

func TestIntakeAcceptsFileThatExactlyFills(t *testing.T) {
	acc := freeAccount(4 * gib)
	in := inputOf(InputFile)
	in.File = video("fits.mkv", gib)

	d := Transition(acc, in)
	require.Equal(t, EffectSave, d.Effect)
	assert.Equal(t, models.StateNone, d.Op.State)
	assert.Equal(t, "fits.mkv", d.Op.File.Name)
	assert.Equal(t, MenuOperation, d.Reply.Menu)
}

func TestNewFileReplacesPendingOperation(t *testing.T) {
	acc := withOperation(freeAccount(0), models.StateAwaitingName)

	d := Transition(acc, inputOf(InputFile))
	require.Equal(t, EffectSave, d.Effect)
	assert.NotEqual(t, "op-1", d.Op.ID)
	assert.Equal(t, "b.mp4", d.Op.File.Name)
	assert.Equal(t, models.StateNone, d.Op.State)
}

func TestAwaitingThumbnailRejectsText(t *testing.T) {
	acc := withOperation(freeAccount(0), models.StateAwaitingThumbnail)

	for _, kind := range []InputKind{InputText, InputFile} {
		d := Transition(acc, inputOf(kind))
		assert.Equal(t, EffectReply, d.Effect, kind)
		assert.Equal(t, textThumbnailNeeded, d.Reply.Text)
	}
}

func TestAwaitingThumbnailAcceptsPhoto(t *testing.T) {
	acc := withOperation(freeAccount(0), models.StateAwaitingThumbnail)

	d := Transition(acc, inputOf(InputPhoto))
	require.Equal(t, EffectSave, d.Effect)
	assert.Equal(t, "op-1", d.Op.ID)
	assert.Equal(t, "photo-1", d.Op.CustomThumbnailID)
	assert.Equal(t, models.StateNone, d.Op.State)
}

func TestCaptionAndSkip(t *testing.T) {
	acc := withOperation(freeAccount(0), models.StateAwaitingCaption)
	in := inputOf(InputText)
	in.Text = "my caption"

	d := Transition(acc, in)
	require.Equal(t, EffectSave, d.Effect)
	require.NotNil(t, d.Op.CustomCaption)
	assert.Equal(t, "my caption", *d.Op.CustomCaption)

	acc.Operation = d.Op
	acc.Operation.State = models.StateAwaitingCaption
	d = Transition(acc, inputOf(InputSkipCaption))
	require.Equal(t, EffectSave, d.Effect)
	assert.Nil(t, d.Op.CustomCaption)
}

func TestSkipOnlyClearsItsOwnField(t *testing.T) {
	caption := "keep me"
	acc := withOperation(freeAccount(0), models.StateAwaitingCaption)
	acc.Operation.CustomCaption = &caption

	d := Transition(acc, inputOf(InputSkipThumbnail))
	assert.Equal(t, EffectReply, d.Effect)
	assert.Equal(t, textNothingToSkip, d.Reply.Text)
	assert.Nil(t, d.Op)

	acc = withOperation(freeAccount(0), models.StateAwaitingThumbnail)
	acc.Operation.CustomThumbnailID = "thumb-1"

	d = Transition(acc, inputOf(InputSkipCaption))
	assert.Equal(t, EffectReply, d.Effect)
	assert.Equal(t, textNothingToSkip, d.Reply.Text)

	d = Transition(acc, inputOf(InputSkipThumbnail))
	require.Equal(t, EffectSave, d.Effect)
	assert.Empty(t, d.Op.CustomThumbnailID)
	assert.Equal(t, models.StateNone, d.Op.State)
}

func TestUnsupportedMessageGetsStatePrompt(t *testing.T) {
	cases := map[models.OperationState]string{
		"":                                   textUnsupported,
		models.StateNone:                     textUnsupported,
		models.StateAwaitingThumbnail:        textThumbnailNeeded,
		models.StateAwaitingCaption:          textCaptionNeeded,
		models.StateAwaitingName:             textNameNeeded,
		models.StateAwaitingDefaultThumbnail: textNeedDefaultThumb,
		models.StateAwaitingDefaultCaption:   textNeedDefaultCap,
		models.StateTransferring:             textBusy,
	}
	for state, want := range cases {
		acc := freeAccount(0)
		if state != "" {
			acc = withOperation(acc, state)
		}
		d := Transition(acc, inputOf(InputUnsupported))
		assert.Equal(t, EffectReply, d.Effect, state)
		assert.Equal(t, want, d.Reply.Text, state)
	}
}

func TestAwaitingNameStartsTransfer(t *testing.T) {
	acc := withOperation(freeAccount(0), models.StateAwaitingName)
	in := inputOf(InputText)
	in.Text = "  movie.mkv  "

	d := Transition(acc, in)
	require.Equal(t, EffectStartTransfer, d.Effect)
	assert.Equal(t, "op-1", d.Op.ID)
	assert.Equal(t, "movie.mkv", d.Op.NewName)
	assert.Empty(t, d.Reply.Text)
}

func TestAwaitingNameRejectsBadName(t *testing.T) {
	acc := withOperation(freeAccount(0), models.StateAwaitingName)
	in := inputOf(InputText)
	in.Text = "../etc/passwd"

	d := Transition(acc, in)
	assert.Equal(t, EffectReply, d.Effect)
	assert.Contains(t, d.Reply.Text, "slashes")
}

func TestTransferringOnlyAcceptsCancel(t *testing.T) {
	for _, kind := range InputKinds {
		d := Transition(withOperation(freeAccount(0), models.StateTransferring), inputOf(kind))
		if kind == InputCancel {
			assert.Equal(t, EffectCancelTransfer, d.Effect)
			continue
		}
		assert.Equal(t, EffectReply, d.Effect, kind)
		assert.Equal(t, textBusy, d.Reply.Text)
	}
}

func TestCancelDeletesPendingOperation(t *testing.T) {
	for _, state := range allStates {
		if state == models.StateTransferring {
			continue
		}
		d := Transition(withOperation(freeAccount(0), state), inputOf(InputCancel))
		assert.Equal(t, EffectDelete, d.Effect, state)
	}
	d := Transition(freeAccount(0), inputOf(InputCancel))
	assert.Equal(t, EffectReply, d.Effect)
	assert.Equal(t, textNothingToCancel, d.Reply.Text)
}

func TestDefaultSubFlows(t *testing.T) {
	d := Transition(freeAccount(0), inputOf(InputSetDefaultThumbnail))
	require.Equal(t, EffectSave, d.Effect)
	assert.Equal(t, models.StateAwaitingDefaultThumbnail, d.Op.State)
	assert.Nil(t, d.Op.File)

	acc := freeAccount(0)
	acc.Operation = d.Op
	d = Transition(acc, inputOf(InputPhoto))
	assert.Equal(t, EffectSetDefaultThumbnail, d.Effect)
	assert.Equal(t, "photo-1", d.Value)

	d = Transition(freeAccount(0), inputOf(InputSetDefaultCaption))
	require.Equal(t, EffectSave, d.Effect)
	acc = freeAccount(0)
	acc.Operation = d.Op
	in := inputOf(InputText)
	in.Text = "Uploaded by me"
	d = Transition(acc, in)
	assert.Equal(t, EffectSetDefaultCaption, d.Effect)
	assert.Equal(t, "Uploaded by me", d.Value)
}

func TestValidateName(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"movie.mkv", "movie.mkv", true},
		{"  spaced name.mp4 ", "spaced name.mp4", true},
		{"no_extension", "no_extension", true},
		{"", "", false},
		{"   ", "", false},
		{"..", "", false},
		{"a/b.mkv", "", false},
		{`a\b.mkv`, "", false},
		{strings.Repeat("x", 256), "", false},
	}
	for _, tc := range cases {
		got, err := ValidateName(tc.in)
		if !tc.ok {
			assert.ErrorIs(t, err, ErrInvalidName, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestFloodWaitSeconds(t *testing.T) {
	assert.Equal(t, 30, (&FloodWaitError{RetryAfter: 30 * time.Second}).Seconds())
	assert.Equal(t, 1, (&FloodWaitError{}).Seconds())
}
