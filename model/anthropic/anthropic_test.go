package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hupe1980/invoicemesh/core"
	"github.com/hupe1980/invoicemesh/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const messageJSON = `{
  "id": "msg_1",
  "type": "message",
  "role": "assistant",
  "model": "claude-3-5-sonnet-20241022",
  "content": [{"type": "text", "text": "{\"documentType\":\"factura_b\"}"}],
  "stop_reason": "end_turn",
  "usage": {"input_tokens": 90, "output_tokens": 10}
}`

func newTestModel(t *testing.T, handler http.HandlerFunc) *Model {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewModel(func(o *Options) {
		o.APIKey = "sk-ant-test"
		o.BaseURL = srv.URL + "/"
	})
}

func TestModel_CompleteImagesFirst(t *testing.T) {
	var body map[string]any
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"))
		assert.Equal(t, "sk-ant-test", r.Header.Get("X-Api-Key"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, messageJSON)
	})

	resp, err := m.Complete(context.Background(), model.Request{
		Parts: []core.Part{
			core.TextPart{Text: "Classify the attached document."},
			core.ImagePart{MimeType: "image/png", Data: []byte("png")},
		},
		MaxTokens:   800,
		Temperature: 0.1,
	})
	require.NoError(t, err)

	assert.Equal(t, `{"documentType":"factura_b"}`, resp.Text)
	assert.Equal(t, "end_turn", resp.FinishReason)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 100, resp.Usage.TotalTokens)

	assert.EqualValues(t, 800, body["max_tokens"])
	messages := body["messages"].([]any)
	require.Len(t, messages, 1)
	content := messages[0].(map[string]any)["content"].([]any)
	require.Len(t, content, 2)

	image := content[0].(map[string]any)
	assert.Equal(t, "image", image["type"])
	source := image["source"].(map[string]any)
	assert.Equal(t, "base64", source["type"])
	assert.Equal(t, "image/png", source["media_type"])
	assert.Equal(t, "cG5n", source["data"])
	assert.Equal(t, "text", content[1].(map[string]any)["type"])
}

func TestModel_EmptyPrompt(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("backend must not be called")
	})

	_, err := m.Complete(context.Background(), model.Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty prompt")
}

func TestModel_APIError(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`)
	})

	_, err := m.Complete(context.Background(), model.Request{Parts: []core.Part{core.TextPart{Text: "hi"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic api error")
}

func TestModel_Info(t *testing.T) {
	info := NewModel(func(o *Options) { o.APIKey = "x" }).Info()
	assert.Equal(t, "anthropic", info.Provider)
	assert.True(t, info.SupportsImages)
}
