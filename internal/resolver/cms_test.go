package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCMS(t *testing.T, handler http.HandlerFunc) *CMSClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewCMSClient(CMSOptions{
		BaseURL: srv.URL,
		Token:   "secret-token",
		Version: "2022-06-28",
	})
}

func TestLookupBlockUploadedFile(t *testing.T) {
	kinds := []string{"image", "file", "pdf", "video"}

	for _, kind := range kinds {
		t.Run(kind, func(t *testing.T) {
			cms := newTestCMS(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
				assert.Equal(t, "2022-06-28", r.Header.Get("Notion-Version"))
				assert.Equal(t, "/blocks/abc123", r.URL.Path)

				fmt.Fprintf(w, `{
					"type": %q,
					%q: {
						"type": "file",
						"file": {
							"url": "https://cdn.example.com/signed",
							"expiry_time": "2026-08-31T12:00:00Z"
						}
					}
				}`, kind, kind)
			})

			url, err := cms.LookupBlock(context.Background(), "abc123")
			require.NoError(t, err)
			assert.Equal(t, "https://cdn.example.com/signed", url)
		})
	}
}

func TestLookupBlockExternalReference(t *testing.T) {
	cms := newTestCMS(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{
			"type": "image",
			"image": {
				"type": "external",
				"external": {"url": "https://images.example.com/photo.jpg"}
			}
		}`)
	})

	url, err := cms.LookupBlock(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "https://images.example.com/photo.jpg", url)
}

func TestLookupBlockUnsupportedKind(t *testing.T) {
	cms := newTestCMS(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"type": "unsupported_type"}`)
	})

	_, err := cms.LookupBlock(context.Background(), "abc123")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookupBlockUnknownReferenceVariant(t *testing.T) {
	cms := newTestCMS(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"type": "image", "image": {"type": "mystery"}}`)
	})

	_, err := cms.LookupBlock(context.Background(), "abc123")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookupBlockNonSuccessStatus(t *testing.T) {
	cms := newTestCMS(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})

	_, err := cms.LookupBlock(context.Background(), "abc123")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookupBlockMalformedPayload(t *testing.T) {
	cms := newTestCMS(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"type": "image", "image":`)
	})

	_, err := cms.LookupBlock(context.Background(), "abc123")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookupBlockMissingToken(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))
	t.Cleanup(srv.Close)

	cms := NewCMSClient(CMSOptions{BaseURL: srv.URL, Version: "2022-06-28"})

	// A missing credential fails fast without touching the network.
	_, err := cms.LookupBlock(context.Background(), "abc123")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, called)
}
