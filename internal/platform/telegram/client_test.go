package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	path string
	body map[string]interface{}
}

func newStubAPI(t *testing.T, response string) (*Client, *[]recordedCall) {
	t.Helper()
	var calls []recordedCall

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := recordedCall{path: r.URL.Path}
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 && r.Header.Get("Content-Type") == "application/json" {
			_ = json.Unmarshal(raw, &call.body)
		}
		calls = append(calls, call)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)

	return NewClientWithBaseURL(srv.URL), &calls
}

func TestGetMe(t *testing.T) {
	client, calls := newStubAPI(t, `{"ok":true,"result":{"id":123,"username":"notekeeper_bot"}}`)

	me, err := client.GetMe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(123), me.ID)
	assert.Equal(t, "notekeeper_bot", me.Username)
	assert.Equal(t, "/getMe", (*calls)[0].path)
}

func TestSendMessagePayload(t *testing.T) {
	client, calls := newStubAPI(t, `{"ok":true}`)

	markup := &ReplyKeyboardMarkup{Keyboard: [][]KeyboardButton{{{Text: "A"}}}, ResizeKeyboard: true}
	err := client.SendMessage(context.Background(), 42, "hello", markup)
	require.NoError(t, err)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, "/sendMessage", call.path)
	assert.Equal(t, float64(42), call.body["chat_id"])
	assert.Equal(t, "hello", call.body["text"])
	assert.NotNil(t, call.body["reply_markup"])
}

func TestSendMessageOmitsMarkupWhenNil(t *testing.T) {
	client, calls := newStubAPI(t, `{"ok":true}`)

	require.NoError(t, client.SendMessage(context.Background(), 42, "hello", nil))
	_, hasMarkup := (*calls)[0].body["reply_markup"]
	assert.False(t, hasMarkup)
}

func TestAPIErrorSurfacesDescription(t *testing.T) {
	client, _ := newStubAPI(t, `{"ok":false,"description":"Bad Request: chat not found"}`)

	err := client.SendMessage(context.Background(), 42, "hello", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestSendDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "42", r.FormValue("chat_id"))
		assert.Equal(t, "2 records", r.FormValue("caption"))

		file, header, err := r.FormFile("document")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "export.json", header.Filename)

		content, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, `[{"body":"x"}]`, string(content))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)

	client := NewClientWithBaseURL(srv.URL)
	err := client.SendDocument(context.Background(), 42, "export.json", []byte(`[{"body":"x"}]`), "2 records")
	require.NoError(t, err)
}
