package mail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendGridSenderPostsMessage(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		assert.Equal(t, "Bearer sg-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sender := NewSendGridSender("sg-key", "Reports", "reports@example.com")
	sender.host = srv.URL

	err := sender.Send(context.Background(), Message{
		To:          []Address{{Name: "Parent", Email: "parent@example.com"}},
		Subject:     "Report ready",
		Text:        "hello",
		Attachments: []Attachment{{Filename: "r.pdf", ContentType: "application/pdf", Content: []byte("%PDF")}},
	})
	require.NoError(t, err)

	from := body["from"].(map[string]interface{})
	assert.Equal(t, "reports@example.com", from["email"])
	attachments := body["attachments"].([]interface{})
	require.Len(t, attachments, 1)
	assert.Equal(t, "JVBERg==", attachments[0].(map[string]interface{})["content"])
}

func TestSendGridSenderRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	sender := NewSendGridSender("bad", "Reports", "reports@example.com")
	sender.host = srv.URL

	err := sender.Send(context.Background(), Message{To: []Address{{Email: "p@example.com"}}, Subject: "s"})
	assert.Error(t, err)
}

func TestSendGridSenderRequiresRecipients(t *testing.T) {
	err := NewSendGridSender("k", "n", "f@example.com").Send(context.Background(), Message{Subject: "s"})
	assert.Error(t, err)
}
