package enhance

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newFakeCompletionServer(t *testing.T, status int, body string, captured *chatRequest) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/v1/chat/completions" {
			http.NotFound(writer, request)
			return
		}
		payload, err := io.ReadAll(request.Body)
		if err == nil && captured != nil {
			_ = json.Unmarshal(payload, captured)
		}
		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(status)
		_, _ = io.WriteString(writer, body)
	}))
	t.Cleanup(server.Close)
	return server
}

const completionBody = `{"id":"chatcmpl-1","object":"chat.completion","created":1700000000,"model":"llama3.2",` +
	`"choices":[{"index":0,"message":{"role":"assistant","content":"Polished note."},"finish_reason":"stop"}]}`

func TestOpenAIGeneratorSendsPromptAsUserMessage(t *testing.T) {
	var captured chatRequest
	server := newFakeCompletionServer(t, http.StatusOK, completionBody, &captured)
	generator := NewOpenAIGenerator(OpenAIConfig{BaseURL: server.URL + "/v1/"})

	text, err := generator.Generate(t.Context(), "Summarize this note in 2-3 sentences:\n\nhello")
	require.NoError(t, err)
	require.Equal(t, "Polished note.", text)
	require.Equal(t, defaultModel, captured.Model)
	require.Len(t, captured.Messages, 1)
	require.Equal(t, "user", captured.Messages[0].Role)
	require.Equal(t, "Summarize this note in 2-3 sentences:\n\nhello", captured.Messages[0].Content)
}

func TestOpenAIGeneratorReportsUpstreamStatus(t *testing.T) {
	server := newFakeCompletionServer(t, http.StatusInternalServerError, `{"error":{"message":"model not loaded","type":"server_error"}}`, nil)
	generator := NewOpenAIGenerator(OpenAIConfig{BaseURL: server.URL + "/v1/", Model: "mistral"})
	require.Equal(t, "mistral", generator.Model())

	_, err := generator.Generate(t.Context(), "prompt")
	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	require.Equal(t, http.StatusInternalServerError, upstreamErr.StatusCode)
	require.Contains(t, upstreamErr.Payload, "model not loaded")
}

func TestOpenAIGeneratorRejectsEmptyChoices(t *testing.T) {
	server := newFakeCompletionServer(t, http.StatusOK, `{"id":"chatcmpl-2","object":"chat.completion","created":1,"model":"llama3.2","choices":[]}`, nil)
	generator := NewOpenAIGenerator(OpenAIConfig{BaseURL: server.URL + "/v1/"})

	_, err := generator.Generate(t.Context(), "prompt")
	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	require.ErrorIs(t, err, errEmptyCompletion)
}
