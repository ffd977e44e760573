package moderation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/driftbottle/pkg/bottle"
)

func TestNew_Providers(t *testing.T) {
	m, err := New(Config{Baidu: BaiduConfig{APIKey: "k", SecretKey: "s"}})
	require.NoError(t, err)
	assert.IsType(t, &Baidu{}, m)

	m, err = New(Config{Provider: " OpenAI ", OpenAI: OpenAIConfig{APIKey: "k"}})
	require.NoError(t, err)
	assert.IsType(t, &OpenAI{}, m)

	m, err = New(Config{Provider: "anthropic", Anthropic: AnthropicConfig{APIKey: "k"}})
	require.NoError(t, err)
	assert.IsType(t, &Anthropic{}, m)
}

func TestNew_Errors(t *testing.T) {
	_, err := New(Config{Provider: "aliyun"})
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = New(Config{Provider: ProviderBaidu, Baidu: BaiduConfig{APIKey: "k"}})
	assert.ErrorIs(t, err, ErrMissingCredentials)

	_, err = New(Config{Provider: ProviderOpenAI})
	assert.ErrorIs(t, err, ErrMissingCredentials)

	_, err = New(Config{Provider: ProviderAnthropic})
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

// fakeBaidu serves the token endpoint and both censor endpoints.
type fakeBaidu struct {
	tokenCalls atomic.Int32
	verdict    func(path string, form map[string][]string) string
}

func (f *fakeBaidu) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case baiduTokenPath:
		f.tokenCalls.Add(1)
		_ = r.ParseForm()
		if r.Form.Get("client_id") != "ak" || r.Form.Get("client_secret") != "sk" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": "invalid_client"}`))
			return
		}
		w.Write([]byte(`{"access_token": "tok-1", "token_type": "bearer", "expires_in": 2592000}`))
	case baiduTextPath, baiduImagePath:
		if r.URL.Query().Get("access_token") != "tok-1" {
			w.Write([]byte(`{"error_code": 110, "error_msg": "Access token invalid"}`))
			return
		}
		_ = r.ParseForm()
		w.Write([]byte(f.verdict(r.URL.Path, r.PostForm)))
	default:
		http.NotFound(w, r)
	}
}

func newTestBaidu(t *testing.T, verdict func(string, map[string][]string) string) (*Baidu, *fakeBaidu) {
	t.Helper()
	fake := &fakeBaidu{verdict: verdict}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	b, err := NewBaidu(BaiduConfig{APIKey: "ak", SecretKey: "sk", BaseURL: srv.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)
	return b, fake
}

func TestBaidu_CheckText(t *testing.T) {
	b, fake := newTestBaidu(t, func(_ string, form map[string][]string) string {
		if strings.Contains(form["text"][0], "bad") {
			return `{"log_id": 1, "conclusion": "不合规", "conclusionType": 2}`
		}
		return `{"log_id": 1, "conclusion": "合规", "conclusionType": 1}`
	})

	ok, err := b.CheckText(context.Background(), "hello sea")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.CheckText(context.Background(), "bad words")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, int32(1), fake.tokenCalls.Load(), "token should be cached")
}

func TestBaidu_MissingConclusionIsNotCompliant(t *testing.T) {
	b, _ := newTestBaidu(t, func(string, map[string][]string) string {
		return `{"log_id": 1, "error_code": 282000, "error_msg": "internal error"}`
	})

	ok, err := b.CheckText(context.Background(), "hi")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBaidu_CheckImage(t *testing.T) {
	var gotPath string
	var gotForm map[string][]string
	b, _ := newTestBaidu(t, func(path string, form map[string][]string) string {
		gotPath, gotForm = path, form
		return `{"conclusionType": 1}`
	})

	ok, err := b.CheckImage(context.Background(), bottle.Image{Type: bottle.ImageBase64, Data: "data:image/png;base64,AAAA"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, baiduImagePath, gotPath)
	assert.Equal(t, []string{"AAAA"}, gotForm["image"])

	_, err = b.CheckImage(context.Background(), bottle.Image{Type: bottle.ImageURL, Data: "http://img.example/a.jpg"})
	require.NoError(t, err)
	assert.Equal(t, []string{"http://img.example/a.jpg"}, gotForm["imgUrl"])
}

func TestBaidu_TokenFailure(t *testing.T) {
	fake := &fakeBaidu{verdict: func(string, map[string][]string) string { return `{"conclusionType": 1}` }}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	b, err := NewBaidu(BaiduConfig{APIKey: "ak", SecretKey: "wrong", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = b.CheckText(context.Background(), "hi")
	assert.ErrorContains(t, err, "baidu access token")
}

func TestOpenAI_Moderate(t *testing.T) {
	var inputs []any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/moderations" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		inputs = append(inputs, req["input"])
		assert.Equal(t, "omni-moderation-latest", req["model"])

		flagged := false
		if s, ok := req["input"].(string); ok && strings.Contains(s, "bad") {
			flagged = true
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":    "modr-1",
			"model": "omni-moderation-latest",
			"results": []map[string]any{
				{"flagged": flagged, "categories": map[string]any{}, "category_scores": map[string]any{}},
			},
		})
	}))
	defer srv.Close()

	m, err := NewOpenAI(OpenAIConfig{APIKey: "sk-test", APIBase: srv.URL + "/v1/"})
	require.NoError(t, err)

	ok, err := m.CheckText(t.Context(), "a calm sea")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.CheckText(t.Context(), "bad words")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.CheckImage(t.Context(), bottle.Image{Type: bottle.ImageBase64, Data: "iVBORw0KGgoAAA"})
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, inputs, 3)
	parts, ok := inputs[2].([]any)
	require.True(t, ok)
	require.Len(t, parts, 1)
	part := parts[0].(map[string]any)
	assert.Equal(t, "image_url", part["type"])
	assert.Equal(t, "data:image/png;base64,iVBORw0KGgoAAA", part["image_url"].(map[string]any)["url"])
}

func anthropicReply(text string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_test",
			"type":        "message",
			"role":        "assistant",
			"model":       req["model"],
			"stop_reason": "end_turn",
			"content":     []map[string]any{{"type": "text", "text": text}},
			"usage":       map[string]any{"input_tokens": 30, "output_tokens": 1},
		})
	}
}

func TestAnthropic_Classify(t *testing.T) {
	tests := []struct {
		reply string
		want  bool
	}{
		{"SAFE", true},
		{"safe.", true},
		{"UNSAFE", false},
		{"I cannot tell", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			srv := httptest.NewServer(anthropicReply(tt.reply))
			defer srv.Close()

			m, err := NewAnthropic(AnthropicConfig{APIKey: "test-key", APIBase: srv.URL + "/v1"})
			require.NoError(t, err)

			ok, err := m.CheckText(t.Context(), "hello")
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestAnthropic_CheckImage(t *testing.T) {
	var blocks []any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		msgs := req["messages"].([]any)
		blocks = msgs[0].(map[string]any)["content"].([]any)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id": "msg_test", "type": "message", "role": "assistant", "model": req["model"],
			"content": []map[string]any{{"type": "text", "text": "SAFE"}},
			"usage":   map[string]any{"input_tokens": 1, "output_tokens": 1},
		})
	}))
	defer srv.Close()

	m, err := NewAnthropic(AnthropicConfig{APIKey: "test-key", APIBase: srv.URL})
	require.NoError(t, err)

	ok, err := m.CheckImage(t.Context(), bottle.Image{Type: bottle.ImageBase64, Data: "data:image/png;base64,AAAA"})
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, blocks, 2)
	img := blocks[0].(map[string]any)
	assert.Equal(t, "image", img["type"])
	src := img["source"].(map[string]any)
	assert.Equal(t, "base64", src["type"])
	assert.Equal(t, "image/png", src["media_type"])
	assert.Equal(t, "AAAA", src["data"])
}

func TestNormalizeBaseURL(t *testing.T) {
	assert.Equal(t, defaultAnthropicBaseURL, normalizeBaseURL(""))
	assert.Equal(t, "https://proxy.example", normalizeBaseURL("https://proxy.example/v1/"))
	assert.Equal(t, "https://proxy.example", normalizeBaseURL(" https://proxy.example "))
}
