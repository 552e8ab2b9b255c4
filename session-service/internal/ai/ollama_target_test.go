package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOllamaTarget_Complete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"llama3","done":true,"message":{"role":"assistant","content":"",` +
			`"tool_calls":[{"function":{"name":"generate_image","arguments":{"prompt":"ruins, fog"}}}]},` +
			`"prompt_eval_count":12,"eval_count":3}` + "\n"))
	}))
	defer srv.Close()

	target, err := NewOllamaTarget(srv.URL+"/v1", "llama3", 5*time.Second, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "ollama/llama3", target.Name())

	reply, err := target.Complete(context.Background(), NewRequest("system", []Message{{Role: RoleUser, Content: "oi"}}))
	require.NoError(t, err)
	require.Len(t, reply.Calls, 1)
	assert.Equal(t, "generate_image", reply.Calls[0].Name)
	assert.JSONEq(t, `{"prompt":"ruins, fog"}`, reply.Calls[0].Arguments)

	assert.Equal(t, "llama3", body["model"])
	assert.Len(t, body["messages"], 2)
	assert.Len(t, body["tools"], 7)
}
