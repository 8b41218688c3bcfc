package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVeniceAdapterLowModeration(t *testing.T) {
	var gotBody veniceRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/images/generations", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"id":"img-1","model":"lustify-sdxl","images":["aW1hZ2U="]}`))
	}))
	defer srv.Close()

	adapter, err := NewVeniceAdapter(&VeniceConfig{BaseURL: srv.URL, APIKey: "vk"})
	require.NoError(t, err)

	raw, err := adapter.Send(context.Background(), &Request{
		Model:         "lustify-sdxl",
		Messages:      []Message{{Role: "user", Content: "a castle at dusk"}},
		LowModeration: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "a castle at dusk", gotBody.Prompt)
	assert.False(t, gotBody.SafeMode)
	assert.Equal(t, "low", gotBody.Moderation)
	assert.Equal(t, 1024, gotBody.Width)

	resp, err := adapter.Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "aW1hZ2U=", resp.ImageB64)
}

func TestVeniceAdapterDefaultModeration(t *testing.T) {
	var gotBody veniceRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"images":["x"]}`))
	}))
	defer srv.Close()

	adapter, err := NewVeniceAdapter(&VeniceConfig{BaseURL: srv.URL, APIKey: "vk"})
	require.NoError(t, err)

	_, err = adapter.Send(context.Background(), &Request{
		Model:    "flux-dev",
		Messages: []Message{{Role: "user", Content: "a castle"}},
	})
	require.NoError(t, err)
	assert.Empty(t, gotBody.Moderation)
}

func TestVeniceAdapterRequiresPrompt(t *testing.T) {
	adapter, err := NewVeniceAdapter(&VeniceConfig{BaseURL: "http://unused", APIKey: "vk"})
	require.NoError(t, err)

	_, err = adapter.Send(context.Background(), &Request{
		Model:    "flux-dev",
		Messages: []Message{{Role: "system", Content: "be artistic"}},
	})
	assert.Error(t, err)
}

func TestVeniceNormalizeRejectsEmptyImages(t *testing.T) {
	adapter, err := NewVeniceAdapter(&VeniceConfig{BaseURL: "http://unused", APIKey: "vk"})
	require.NoError(t, err)

	_, err = adapter.Normalize(&Raw{Status: http.StatusOK, Body: []byte(`{"images":[]}`)})
	assert.Error(t, err)
}
