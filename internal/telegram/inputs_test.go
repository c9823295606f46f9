package telegram

import (
	"errors"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/TGRenameBot/internal/models"
	"github.com/digkill/TGRenameBot/internal/renamer"
	"github.com/digkill/TGRenameBot/internal/service"
)

func baseMessage() *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: 77, FirstName: "Ann"},
		Chat:      &tgbotapi.Chat{ID: 77, Type: "private"},
		Date:      int(time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC).Unix()),
	}
}

func TestInputFromDocument(t *testing.T) {
	msg := baseMessage()
	msg.Document = &tgbotapi.Document{
		FileID:       "doc",
		FileUniqueID: "u1",
		FileName:     "a.mkv",
		MimeType:     "video/x-matroska",
		FileSize:     2048,
		Thumbnail:    &tgbotapi.PhotoSize{FileID: "thumb"},
	}

	in, ok := inputFromMessage(msg)
	require.True(t, ok)
	assert.Equal(t, renamer.InputFile, in.Kind)
	assert.Equal(t, int64(77), in.UserID)
	require.NotNil(t, in.File)
	assert.Equal(t, models.KindDocument, in.File.Kind)
	assert.Equal(t, "a.mkv", in.File.Name)
	assert.Equal(t, int64(2048), in.File.Size)
	assert.Equal(t, "thumb", in.File.ThumbnailID)
}

func TestInputFromVideoAndAudio(t *testing.T) {
	msg := baseMessage()
	msg.Video = &tgbotapi.Video{FileID: "v", FileUniqueID: "uv", Duration: 12, Width: 640, Height: 360, FileSize: 10}
	in, ok := inputFromMessage(msg)
	require.True(t, ok)
	assert.Equal(t, models.KindVideo, in.File.Kind)
	assert.Equal(t, "video_uv.mp4", in.File.Name)
	assert.Equal(t, 12, in.File.Duration)
	assert.Equal(t, 640, in.File.Width)

	msg = baseMessage()
	msg.Audio = &tgbotapi.Audio{FileID: "a", FileName: "song.mp3", Title: "Song", Performer: "Band", Duration: 200}
	in, ok = inputFromMessage(msg)
	require.True(t, ok)
	assert.Equal(t, models.KindAudio, in.File.Kind)
	assert.Equal(t, "song.mp3", in.File.Name)
	assert.Equal(t, "Band", in.File.Performer)
}

func TestInputFromPhotoUsesLargestSize(t *testing.T) {
	msg := baseMessage()
	msg.Photo = []tgbotapi.PhotoSize{
		{FileID: "small", Width: 90, Height: 90},
		{FileID: "large", Width: 1280, Height: 1280, FileSize: 5000},
	}
	in, ok := inputFromMessage(msg)
	require.True(t, ok)
	assert.Equal(t, renamer.InputPhoto, in.Kind)
	assert.Equal(t, "large", in.File.FileID)
	assert.Equal(t, models.KindPhoto, in.File.Kind)
	assert.Equal(t, "photo_20240501_103000.jpg", in.File.Name)
}

func TestInputFromTextAndUnsupported(t *testing.T) {
	msg := baseMessage()
	msg.Text = "movie.mkv"
	in, ok := inputFromMessage(msg)
	require.True(t, ok)
	assert.Equal(t, renamer.InputText, in.Kind)
	assert.Equal(t, "movie.mkv", in.Text)

	msg = baseMessage()
	msg.Sticker = &tgbotapi.Sticker{FileID: "s"}
	in, ok = inputFromMessage(msg)
	assert.False(t, ok)
	assert.Equal(t, renamer.InputUnsupported, in.Kind)
	assert.Nil(t, in.File)
}

func TestCommandAndCallbackTables(t *testing.T) {
	assert.Equal(t, renamer.InputSkipThumbnail, commandInputs["skip_thumbnail"])
	assert.Equal(t, renamer.InputSkipCaption, commandInputs["skip_caption"])
	assert.Equal(t, renamer.InputSetDefaultThumbnail, commandInputs["set_thumb"])
	assert.Equal(t, renamer.InputCancel, commandInputs["cancel"])
	assert.Equal(t, renamer.InputRename, callbackInputs[cbRename])
	assert.Equal(t, renamer.InputCancel, callbackInputs[cbCancelOperation])
}

type fakeMembers struct {
	statuses map[string]tgbotapi.ChatMember
	seen     []tgbotapi.ChatConfigWithUser
}

func (f *fakeMembers) GetChatMember(cfg tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error) {
	f.seen = append(f.seen, cfg.ChatConfigWithUser)
	key := cfg.SuperGroupUsername
	if key == "" {
		key = "id"
	}
	m, ok := f.statuses[key]
	if !ok {
		return tgbotapi.ChatMember{}, errors.New("Bad Request: chat not found")
	}
	return m, nil
}

func TestIsMember(t *testing.T) {
	members := &fakeMembers{statuses: map[string]tgbotapi.ChatMember{
		"@news":   {Status: "member"},
		"@left":   {Status: "left"},
		"@muted":  {Status: "restricted", IsMember: true},
		"id":      {Status: "administrator"},
		"@kicked": {Status: "kicked"},
	}}

	for channel, want := range map[string]bool{"news": true, "left": false, "muted": true, "-100123": true, "kicked": false} {
		got, err := isMember(members, channel, 5)
		require.NoError(t, err, channel)
		assert.Equal(t, want, got, channel)
	}

	_, err := isMember(members, "gone", 5)
	assert.Error(t, err)

	var sawNumeric bool
	for _, cfg := range members.seen {
		if cfg.ChatID == -100123 {
			sawNumeric = true
		}
		assert.Equal(t, int64(5), cfg.UserID)
	}
	assert.True(t, sawNumeric)
}

func TestSubscriptionKeyboardSkipsNumericChannels(t *testing.T) {
	kb := subscriptionKeyboard([]string{"news", "-100123"})
	require.Len(t, kb.InlineKeyboard, 2)
	require.NotNil(t, kb.InlineKeyboard[0][0].URL)
	assert.Equal(t, "https://t.me/news", *kb.InlineKeyboard[0][0].URL)
	require.NotNil(t, kb.InlineKeyboard[1][0].CallbackData)
	assert.Equal(t, cbCheckSubscription, *kb.InlineKeyboard[1][0].CallbackData)
}

func TestPlanText(t *testing.T) {
	expires := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	acc := &models.Account{
		Plan:               models.PlanSilver,
		DailyLimitBytes:    20 * service.GiB,
		DailyUploadedBytes: service.GiB / 2,
		ParallelLimit:      3,
		PlanExpiresAt:      &expires,
	}
	text := planText(acc, models.Plan{Tier: models.PlanSilver, Title: "Silver"})
	assert.Contains(t, text, "Plan: Silver")
	assert.Contains(t, text, "Daily limit: 20.00 GiB")
	assert.Contains(t, text, "Uploaded today: 512.00 MiB")
	assert.Contains(t, text, "Remaining today: 19.50 GiB")
	assert.Contains(t, text, "Parallel transfers: 3")
	assert.Contains(t, text, "Expires: 2024-06-01")
}

func TestUpgradeText(t *testing.T) {
	text := upgradeText([]models.Plan{
		{Title: "Silver", DailyLimitBytes: 20 * service.GiB, ParallelLimit: 3, Price: "$5/month"},
		{Title: "Gold", DailyLimitBytes: 100 * service.GiB, ParallelLimit: 5},
	}, "https://t.me/support")
	assert.Contains(t, text, "Silver: 20.00 GiB per day, 3 parallel transfers, $5/month")
	assert.Contains(t, text, "Gold: 100.00 GiB per day, 5 parallel transfers")
	assert.True(t, strings.HasSuffix(text, "contact https://t.me/support"))

	assert.Equal(t, "No upgrades are available right now.", upgradeText(nil, ""))
}

func TestAboutTextAndKeyboard(t *testing.T) {
	assert.True(t, strings.HasPrefix(aboutText("rename_bot"), "@rename_bot renames"))
	assert.True(t, strings.HasPrefix(aboutText(""), "this bot renames"))

	_, ok := aboutKeyboard("", "")
	assert.False(t, ok)

	kb, ok := aboutKeyboard("https://t.me/updates", "https://t.me/support")
	require.True(t, ok)
	require.Len(t, kb.InlineKeyboard, 1)
	row := kb.InlineKeyboard[0]
	require.Len(t, row, 2)
	assert.Equal(t, "Update Channel", row[0].Text)
	assert.Equal(t, "https://t.me/updates", *row[0].URL)
	assert.Equal(t, "Support Group", row[1].Text)

	kb, ok = aboutKeyboard("", "https://t.me/support")
	require.True(t, ok)
	require.Len(t, kb.InlineKeyboard[0], 1)
	assert.Equal(t, "https://t.me/support", *kb.InlineKeyboard[0][0].URL)
}

func TestHistoryText(t *testing.T) {
	assert.Equal(t, "You have no transfers yet.", historyText(nil))
	text := historyText([]models.TransferLog{{
		OriginalName: "a.mkv", NewName: "movie.mkv", SizeBytes: 1024, Status: models.TransferSucceeded,
		CreatedAt: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}})
	assert.Contains(t, text, "2024-05-01 09:00 a.mkv -> movie.mkv (1.00 KiB, succeeded)")
}
