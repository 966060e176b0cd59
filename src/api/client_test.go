package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Protocol-Lattice/lattice-studio/src/studio"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	lastGen  studio.GenerateRequest
	lastAuth string
}

func (f *fakeServer) router() http.Handler {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/generate-unified", f.generate).Methods(http.MethodPost)
	v1.HandleFunc("/conversations/{id}", f.conversation).Methods(http.MethodGet)
	v1.HandleFunc("/assets/{id}/toggle-like", f.toggleLike).Methods(http.MethodPost)
	v1.HandleFunc("/assets/{id}/increment-download", f.incrementDownload).Methods(http.MethodPost)
	r.HandleFunc("/files/{name}", func(w http.ResponseWriter, r *http.Request) {
		f.lastAuth = r.Header.Get("Authorization")
		fmt.Fprintf(w, "bytes of %s", mux.Vars(r)["name"])
	}).Methods(http.MethodGet)
	return r
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

func (f *fakeServer) generate(w http.ResponseWriter, r *http.Request) {
	f.lastAuth = r.Header.Get("Authorization")
	if err := json.NewDecoder(r.Body).Decode(&f.lastGen); err != nil {
		writeJSON(w, http.StatusBadRequest, `{"error":"bad body"}`)
		return
	}
	switch f.lastGen.Prompt {
	case "blocked":
		writeJSON(w, http.StatusUnprocessableEntity, `{"error":{"message":"prompt blocked by safety filter"}}`)
		return
	case "crash":
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "upstream exploded")
		return
	}
	writeJSON(w, http.StatusOK, `{
		"conversationId": "conv-9",
		"message": {"id": "m-2", "role": "assistant", "content": "done",
			"assets": [{"id": "v1", "type": "video", "url": "https://cdn/v1.mp4", "uri": "files/v1"}]},
		"usage": {"totalTokens": 120},
		"cost": {"totalCost": 0.4, "currency": "USD"},
		"sessionCost": {"totalCost": 1.2, "totalTokens": 900, "currency": "USD"}
	}`)
}

func (f *fakeServer) conversation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "missing" {
		writeJSON(w, http.StatusNotFound, `{"message":"conversation not found"}`)
		return
	}
	writeJSON(w, http.StatusOK, `{"messages":[{"id":"m-1","role":"user","content":"hi"}],"sessionCost":{"totalCost":0.3,"totalTokens":10,"currency":"USD"}}`)
}

func (f *fakeServer) toggleLike(w http.ResponseWriter, r *http.Request) {
	switch id := mux.Vars(r)["id"]; id {
	case "gone":
		writeJSON(w, http.StatusOK, `{"deleted":true}`)
	case "nested":
		writeJSON(w, http.StatusOK, `{"liked":false,"asset":{"id":"nested","type":"image","url":"https://cdn/n.png"}}`)
	default:
		writeJSON(w, http.StatusOK, fmt.Sprintf(`{"id":%q,"type":"image","url":"https://cdn/a.png","liked":true}`, id))
	}
}

func (f *fakeServer) incrementDownload(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "nested" {
		writeJSON(w, http.StatusOK, `{"asset":{"id":"nested","downloads":12}}`)
		return
	}
	writeJSON(w, http.StatusOK, fmt.Sprintf(`{"id":%q,"downloads":5}`, id))
}

func newTestClient(t *testing.T) (*Client, *fakeServer) {
	t.Helper()
	fs := &fakeServer{}
	srv := httptest.NewServer(fs.router())
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/v1", WithCredentials(StaticToken("secret")))
	require.NoError(t, err)
	return c, fs
}

func TestNewRejectsRelativeURL(t *testing.T) {
	_, err := New("api/v1")
	require.Error(t, err)
}

func TestGenerate(t *testing.T) {
	c, fs := newTestClient(t)
	start := studio.MediaPayload{MimeType: "image/png", Data: "AAEC"}
	resp, err := c.Generate(context.Background(), &studio.GenerateRequest{
		Mode:           studio.ModeVideo,
		Prompt:         "morph",
		ConversationID: "prov-1",
		VideoMode:      studio.FramesToVideo,
		StartFrame:     &start,
		EndFrame:       &start,
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", fs.lastAuth)
	assert.Equal(t, studio.FramesToVideo, fs.lastGen.VideoMode)
	require.NotNil(t, fs.lastGen.StartFrame)
	assert.Equal(t, "AAEC", fs.lastGen.StartFrame.Data)
	assert.Nil(t, fs.lastGen.InputVideo)

	assert.Equal(t, "conv-9", resp.ConversationID)
	assert.Equal(t, "done", resp.Message.Content)
	require.Len(t, resp.Message.Assets, 1)
	assert.True(t, resp.Message.Assets[0].Extendable())
	require.NotNil(t, resp.SessionCost)
	assert.InDelta(t, 1.2, resp.SessionCost.TotalCost, 1e-9)
}

func TestGenerateErrors(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.Generate(context.Background(), &studio.GenerateRequest{Mode: studio.ModeText, Prompt: "blocked"})
	var he *HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusUnprocessableEntity, he.StatusCode)
	assert.Equal(t, "prompt blocked by safety filter", he.Message)

	_, err = c.Generate(context.Background(), &studio.GenerateRequest{Mode: studio.ModeText, Prompt: "crash"})
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusBadGateway, he.StatusCode)
	assert.Equal(t, "upstream exploded", he.Message)
}

func TestConversation(t *testing.T) {
	c, _ := newTestClient(t)

	h, err := c.Conversation(context.Background(), "conv-9")
	require.NoError(t, err)
	assert.Equal(t, "conv-9", h.ID)
	require.Len(t, h.Messages, 1)
	assert.Equal(t, studio.RoleUser, h.Messages[0].Role)
	require.NotNil(t, h.SessionCost)

	_, err = c.Conversation(context.Background(), "missing")
	var he *HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, "conversation not found", he.Message)
}

func TestToggleLike(t *testing.T) {
	c, _ := newTestClient(t)

	res, err := c.ToggleLike(context.Background(), "a1")
	require.NoError(t, err)
	assert.True(t, res.Liked)
	assert.False(t, res.Deleted)
	assert.Equal(t, "https://cdn/a.png", res.Asset.URL)

	res, err = c.ToggleLike(context.Background(), "nested")
	require.NoError(t, err)
	assert.False(t, res.Liked)
	assert.Equal(t, "https://cdn/n.png", res.Asset.URL)

	res, err = c.ToggleLike(context.Background(), "gone")
	require.NoError(t, err)
	assert.True(t, res.Deleted)
	assert.Equal(t, "gone", res.Asset.ID)
}

func TestIncrementDownload(t *testing.T) {
	c, _ := newTestClient(t)

	res, err := c.IncrementDownload(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, 5, res.Downloads)
	assert.Equal(t, "a1", res.Asset.ID)

	res, err = c.IncrementDownload(context.Background(), "nested")
	require.NoError(t, err)
	assert.Equal(t, 12, res.Downloads)
}

func TestFetch(t *testing.T) {
	c, fs := newTestClient(t)
	var buf bytes.Buffer
	n, err := c.Fetch(context.Background(), "/files/clip.mp4", &buf)
	require.NoError(t, err)
	assert.Equal(t, "bytes of clip.mp4", buf.String())
	assert.EqualValues(t, buf.Len(), n)
	assert.Equal(t, "Bearer secret", fs.lastAuth)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "quota", errorMessage(429, []byte(`{"error":"quota"}`)))
	assert.Equal(t, "Service Unavailable", errorMessage(503, nil))
	assert.Equal(t, `{"code":7}`, errorMessage(400, []byte(`{"code":7}`)))
}
