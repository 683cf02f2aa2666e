// ABOUTME: Tests for the Graph-style provider client.
// ABOUTME: Verifies wire payload shapes, auth header, and error surfacing.

package outbound

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *GraphProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGraphProvider(srv.URL, "12345", "test-token")
}

func TestGraphProvider_SendText(t *testing.T) {
	var got map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/12345/messages", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"messages":[{"id":"wamid.abc"}]}`))
	})

	id, err := p.SendText(context.Background(), "541170442131", "hola")
	require.NoError(t, err)
	assert.Equal(t, "wamid.abc", id)
	assert.Equal(t, "whatsapp", got["messaging_product"])
	assert.Equal(t, "text", got["type"])
	text := got["text"].(map[string]any)
	assert.Equal(t, "hola", text["body"])
}

func TestGraphProvider_SendButtonsPayloadShape(t *testing.T) {
	var got map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"messages":[{"id":"wamid.btn"}]}`))
	})

	_, err := p.SendButtons(context.Background(), "541170442131", "Elegí:", []Option{
		{ID: "BTN_A", Title: "Sedes"},
	})
	require.NoError(t, err)

	interactive := got["interactive"].(map[string]any)
	assert.Equal(t, "button", interactive["type"])
	action := interactive["action"].(map[string]any)
	buttons := action["buttons"].([]any)
	require.Len(t, buttons, 1)
	reply := buttons[0].(map[string]any)["reply"].(map[string]any)
	assert.Equal(t, "BTN_A", reply["id"])
}

func TestGraphProvider_SendButtonsRejectsMoreThanThree(t *testing.T) {
	p := NewGraphProvider("http://unused", "12345", "tok")
	opts := []Option{{ID: "1"}, {ID: "2"}, {ID: "3"}, {ID: "4"}}
	_, err := p.SendButtons(context.Background(), "54", "x", opts)
	assert.Error(t, err)
}

func TestGraphProvider_NonSuccessStatusIsError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"invalid recipient"}}`))
	})

	_, err := p.SendText(context.Background(), "bad", "hola")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "invalid recipient")
}

func TestGraphProvider_MissingCredentials(t *testing.T) {
	p := NewGraphProvider("http://unused", "", "")
	_, err := p.SendText(context.Background(), "54", "hola")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
