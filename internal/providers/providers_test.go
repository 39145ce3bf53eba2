package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUnknownProvider(t *testing.T) {
	_, err := New("mystery", "model-x", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestNewMissingAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := New("anthropic", "claude-sonnet-4-20250514", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")
}

func TestInvokeParsesTextAndToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openaiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Tools, 1)
		assert.Equal(t, "read_file", req.Tools[0].Function.Name)

		resp := map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{
					"content": "need more context",
					"tool_calls": []map[string]any{{
						"function": map[string]any{
							"name":      "read_file",
							"arguments": `{"path":"src/auth.py","start_line":10,"end_line":40}`,
						},
					}},
				},
			}},
			"usage": map[string]any{"total_tokens": 321},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	t.Setenv("OLLAMA_HOST", srv.URL)
	p, err := NewOllama("llama3", Options{})
	require.NoError(t, err)

	resp, err := p.Invoke(context.Background(), Request{
		System: "sys",
		User:   "user",
		Tools: []ToolSpec{{
			Name:        "read_file",
			Description: "read a file slice",
			Schema:      map[string]any{"type": "object"},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, "need more context", resp.Content)
	assert.Equal(t, 321, resp.TokensUsed)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "read_file", resp.ToolCalls[0].Name)
	assert.Equal(t, "src/auth.py", resp.ToolCalls[0].Args["path"])
	assert.Equal(t, float64(10), resp.ToolCalls[0].Args["start_line"])
}

func TestInvokeAuthErrorNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	t.Setenv("OLLAMA_HOST", srv.URL)
	p, err := NewOllama("llama3", Options{})
	require.NoError(t, err)

	_, err = p.Invoke(context.Background(), Request{User: "hi"})
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.Equal(t, 1, calls)
}
