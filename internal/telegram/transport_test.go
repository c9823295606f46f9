package telegram

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/TGRenameBot/internal/models"
	"github.com/digkill/TGRenameBot/internal/renamer"
)

const testToken = "123:abc"

type fakeBotAPI struct {
	mu        sync.Mutex
	floodSend bool
	floodFile bool
	floodWait string // Retry-After sent with a flooded file download
	uploads   []capturedUpload
	edits     []string
}

type capturedUpload struct {
	method   string
	filename string
	body     string
	caption  string
	hasThumb bool
}

func (f *fakeBotAPI) handler(t *testing.T) http.Handler {
	prefix := "/bot" + testToken + "/"
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasPrefix(r.URL.Path, "/file/bot"+testToken+"/") {
			if f.floodFile {
				if f.floodWait != "" {
					w.Header().Set("Retry-After", f.floodWait)
				}
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			io.WriteString(w, "file-bytes")
			return
		}

		method := strings.TrimPrefix(r.URL.Path, prefix)
		switch method {
		case "getMe":
			io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Rename","username":"rename_bot"}}`)
		case "getFile":
			io.WriteString(w, `{"ok":true,"result":{"file_id":"abc","file_unique_id":"u","file_size":10,"file_path":"documents/a.bin"}}`)
		case "sendMessage":
			io.WriteString(w, `{"ok":true,"result":{"message_id":42,"date":0,"chat":{"id":5,"type":"private"}}}`)
		case "editMessageText":
			require.NoError(t, r.ParseForm())
			f.mu.Lock()
			f.edits = append(f.edits, r.FormValue("text"))
			f.mu.Unlock()
			io.WriteString(w, `{"ok":true,"result":true}`)
		case "sendDocument", "sendVideo", "sendAudio":
			if f.floodSend {
				io.Copy(io.Discard, r.Body)
				io.WriteString(w, `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 7","parameters":{"retry_after":7}}`)
				return
			}
			require.NoError(t, r.ParseMultipartForm(1<<20))
			field := strings.TrimPrefix(strings.ToLower(method), "send")
			file, header, err := r.FormFile(field)
			require.NoError(t, err)
			body, _ := io.ReadAll(file)
			_, _, thumbErr := r.FormFile("thumb")
			f.mu.Lock()
			f.uploads = append(f.uploads, capturedUpload{
				method:   method,
				filename: header.Filename,
				body:     string(body),
				caption:  r.FormValue("caption"),
				hasThumb: thumbErr == nil,
			})
			f.mu.Unlock()
			io.WriteString(w, `{"ok":true,"result":{"message_id":43,"date":0,"chat":{"id":5,"type":"private"}}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
		}
	})
}

func newTestTransport(t *testing.T) (*Transport, *fakeBotAPI) {
	t.Helper()
	fake := &fakeBotAPI{}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(testToken, srv.URL+"/bot%s/%s")
	require.NoError(t, err)
	return NewTransport(api, srv.URL+"/file/bot%s/%s", 5*time.Second), fake
}

func TestTransportOpenStreamsFile(t *testing.T) {
	tr, _ := newTestTransport(t)
	rc, err := tr.Open(context.Background(), "abc")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "file-bytes", string(data))
}

func TestTransportOpenMapsRateLimit(t *testing.T) {
	tr, fake := newTestTransport(t)
	fake.floodFile = true
	fake.floodWait = "9"

	_, err := tr.Open(context.Background(), "abc")
	var flood *renamer.FloodWaitError
	require.ErrorAs(t, err, &flood)
	assert.Equal(t, 9*time.Second, flood.RetryAfter)
}

func TestTransportOpenRateLimitWithoutUsableHeader(t *testing.T) {
	for _, header := range []string{"", "soon", "0"} {
		tr, fake := newTestTransport(t)
		fake.floodFile = true
		fake.floodWait = header

		_, err := tr.Open(context.Background(), "abc")
		var flood *renamer.FloodWaitError
		require.ErrorAs(t, err, &flood, header)
		assert.Equal(t, defaultRetryAfter, flood.RetryAfter, header)
		assert.Equal(t, 30, flood.Seconds(), header)
	}
}

func TestTransportSendAndEdit(t *testing.T) {
	tr, fake := newTestTransport(t)
	id, err := tr.Send(context.Background(), 5, renamer.Reply{Text: "hi", Menu: renamer.MenuOperation})
	require.NoError(t, err)
	assert.Equal(t, 42, id)

	require.NoError(t, tr.Edit(context.Background(), 5, id, "Uploading"))
	assert.Equal(t, []string{"Uploading"}, fake.edits)
}

func TestTransportUploadDocumentWithThumbnail(t *testing.T) {
	tr, fake := newTestTransport(t)
	thumb := filepath.Join(t.TempDir(), "thumb.jpg")
	require.NoError(t, os.WriteFile(thumb, []byte("jpeg"), 0o644))

	err := tr.Upload(context.Background(), renamer.UploadRequest{
		ChatID:        5,
		Kind:          models.KindDocument,
		Name:          "movie.mkv",
		Reader:        strings.NewReader("payload"),
		Size:          7,
		ThumbnailPath: thumb,
		Caption:       "Here is your renamed file: movie.mkv",
	})
	require.NoError(t, err)

	require.Len(t, fake.uploads, 1)
	up := fake.uploads[0]
	assert.Equal(t, "sendDocument", up.method)
	assert.Equal(t, "movie.mkv", up.filename)
	assert.Equal(t, "payload", up.body)
	assert.Equal(t, "Here is your renamed file: movie.mkv", up.caption)
	assert.True(t, up.hasThumb)
}

func TestTransportUploadPhotoGoesOutAsDocument(t *testing.T) {
	tr, fake := newTestTransport(t)
	err := tr.Upload(context.Background(), renamer.UploadRequest{
		ChatID: 5,
		Kind:   models.KindPhoto,
		Name:   "sunset.jpg",
		Reader: strings.NewReader("jpeg"),
		Size:   4,
	})
	require.NoError(t, err)
	require.Len(t, fake.uploads, 1)
	assert.Equal(t, "sendDocument", fake.uploads[0].method)
	assert.False(t, fake.uploads[0].hasThumb)
}

func TestTransportUploadMapsFloodWait(t *testing.T) {
	tr, fake := newTestTransport(t)
	fake.floodSend = true

	err := tr.Upload(context.Background(), renamer.UploadRequest{
		ChatID: 5,
		Kind:   models.KindVideo,
		Name:   "clip.mp4",
		Reader: strings.NewReader("video"),
		Size:   5,
	})
	var flood *renamer.FloodWaitError
	require.ErrorAs(t, err, &flood)
	assert.Equal(t, 7*time.Second, flood.RetryAfter)
}

func TestContextReaderStopsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &contextReader{ctx: ctx, r: strings.NewReader("abc")}
	buf := make([]byte, 1)
	_, err := r.Read(buf)
	require.NoError(t, err)
	cancel()
	_, err = r.Read(buf)
	assert.ErrorIs(t, err, context.Canceled)
}
