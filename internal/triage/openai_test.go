package triage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

func newServerAssessor(t *testing.T, handler http.HandlerFunc) (*OpenAIAssessor, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a, err := NewOpenAIAssessor(OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
	}, metrics.NewMetrics("clinic", "test", prometheus.NewRegistry()))
	require.NoError(t, err)
	return a, srv
}

func completionResponse(content string) map[string]interface{} {
	return map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	}
}

func TestOpenAIAssessorRequiresKey(t *testing.T) {
	_, err := NewOpenAIAssessor(OpenAIConfig{}, metrics.NewMetrics("clinic", "test", prometheus.NewRegistry()))
	assert.Error(t, err)
}

func TestOpenAIAssessorClassifies(t *testing.T) {
	var gotReq chatRequest
	a, _ := newServerAssessor(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(completionResponse(" High\n"))
	})

	label, err := a.Urgency(context.Background(), "appt-1", "crushing chest pain")
	require.NoError(t, err)
	assert.Equal(t, "high", label)

	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Equal(t, "crushing chest pain", gotReq.Messages[1].Content)
	assert.Equal(t, "appt-1", gotReq.User)
	assert.Zero(t, gotReq.Temperature)
}

func TestOpenAIAssessorPassesThroughUnknownLabel(t *testing.T) {
	a, _ := newServerAssessor(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(completionResponse("urgent"))
	})

	label, err := a.Urgency(context.Background(), "appt-1", "something odd")
	require.NoError(t, err)
	assert.Equal(t, "urgent", label)
}

func TestOpenAIAssessorServerError(t *testing.T) {
	a, _ := newServerAssessor(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := a.Urgency(context.Background(), "appt-1", "fever")
	assert.Error(t, err)
}

func TestOpenAIAssessorEmptyChoices(t *testing.T) {
	a, _ := newServerAssessor(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
	})

	_, err := a.Urgency(context.Background(), "appt-1", "fever")
	assert.Error(t, err)
}
