package server

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomasbasham/image-proxy/internal/fetch"
	"github.com/tomasbasham/image-proxy/internal/resolver"
	"github.com/tomasbasham/image-proxy/internal/store"
	"github.com/tomasbasham/image-proxy/internal/transcode"
)

// upstream is a fake CDN serving one asset and counting hits.
type upstream struct {
	srv         *httptest.Server
	hits        atomic.Int64
	body        []byte
	contentType string
	status      int
	delay       time.Duration
}

func newUpstream(t *testing.T, body []byte, contentType string) *upstream {
	t.Helper()
	u := &upstream{body: body, contentType: contentType, status: http.StatusOK}
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		u.hits.Add(1)
		if u.delay > 0 {
			time.Sleep(u.delay)
		}
		if u.status != http.StatusOK {
			http.Error(w, "upstream error", u.status)
			return
		}
		w.Header().Set("Content-Type", u.contentType)
		_, _ = w.Write(u.body)
	}))
	t.Cleanup(u.srv.Close)
	return u
}

// cms is a fake block-lookup API pointing every block at the upstream.
type cms struct {
	srv  *httptest.Server
	hits atomic.Int64
}

func newCMS(t *testing.T, assetURL string) *cms {
	t.Helper()
	c := &cms{}
	c.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		c.hits.Add(1)
		fmt.Fprintf(w, `{"type": "image", "image": {"type": "file", "file": {"url": %q}}}`, assetURL)
	}))
	t.Cleanup(c.srv.Close)
	return c
}

type env struct {
	handler  http.Handler
	cms      *cms
	upstream *upstream
	variants *store.MemoryStore
}

func newEnv(t *testing.T, u *upstream, opts ...func(*Options)) *env {
	t.Helper()

	c := newCMS(t, u.srv.URL)

	cmsClient := resolver.NewCMSClient(resolver.CMSOptions{
		BaseURL: c.srv.URL,
		Token:   "secret-token",
		Version: "2022-06-28",
	})

	res := resolver.New(resolver.Options{
		Lookup: cmsClient,
		Cache:  resolver.NewURLCache(8, time.Hour),
	})

	options := Options{
		Resolver:   res,
		Fetcher:    fetch.New(nil, time.Second),
		Transcoder: transcode.New(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	srv := New(options)

	e := &env{handler: srv.Handler(), cms: c, upstream: u}
	if ms, ok := options.Variants.(*store.MemoryStore); ok {
		e.variants = ms
	}
	return e
}

func withVariants(s store.Store) func(*Options) {
	return func(o *Options) { o.Variants = s }
}

func (e *env) get(t *testing.T, path, accept string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func gifBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewPaletted(image.Rect(0, 0, 16, 16), []color.Color{color.Black, color.White})
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestServeTranscodedImage(t *testing.T) {
	e := newEnv(t, newUpstream(t, jpegBytes(t), "image/jpeg"))

	rec := e.get(t, "/image-proxy/abc123/photo.jpg", "image/webp,image/*")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/webp", rec.Header().Get("Content-Type"))
	assert.Equal(t, "public, s-maxage=31536000, max-age=31536000, immutable, stale-while-revalidate=2592000", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "Accept", rec.Header().Get("Vary"))
	assert.Equal(t, "DPR, Width, Viewport-Width", rec.Header().Get("Accept-CH"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestServeAVIFPreferred(t *testing.T) {
	e := newEnv(t, newUpstream(t, jpegBytes(t), "image/jpeg"))

	rec := e.get(t, "/image-proxy/abc123/photo.jpg", "image/avif,image/webp,image/*")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/avif", rec.Header().Get("Content-Type"))
}

func TestServeResolverCacheHit(t *testing.T) {
	e := newEnv(t, newUpstream(t, jpegBytes(t), "image/jpeg"))

	e.get(t, "/image-proxy/abc123/photo.jpg", "image/webp")
	e.get(t, "/image-proxy/abc123/photo.jpg", "image/webp")

	// The second request reuses the cached signed URL.
	assert.Equal(t, int64(1), e.cms.hits.Load())
	assert.Equal(t, int64(2), e.upstream.hits.Load())
}

func TestServeNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such block", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	cmsClient := resolver.NewCMSClient(resolver.CMSOptions{
		BaseURL: srv.URL,
		Token:   "secret-token",
	})
	res := resolver.New(resolver.Options{
		Lookup: cmsClient,
		Cache:  resolver.NewURLCache(8, time.Hour),
	})
	s := New(Options{
		Resolver:   res,
		Fetcher:    fetch.New(nil, time.Second),
		Transcoder: transcode.New(),
	})

	req := httptest.NewRequest(http.MethodGet, "/image-proxy/missing/img.png", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "public, s-maxage=60, max-age=60", rec.Header().Get("Cache-Control"))
}

func TestServeUpstreamFailure(t *testing.T) {
	u := newUpstream(t, nil, "image/jpeg")
	u.status = http.StatusForbidden

	e := newEnv(t, u)

	rec := e.get(t, "/image-proxy/abc123/photo.jpg", "image/webp")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "public, s-maxage=60, max-age=60", rec.Header().Get("Cache-Control"))
}

func TestServeUpstreamTimeout(t *testing.T) {
	u := newUpstream(t, jpegBytes(t), "image/jpeg")
	u.delay = 300 * time.Millisecond

	e := newEnv(t, u, func(o *Options) {
		o.Fetcher = fetch.New(nil, 50*time.Millisecond)
	})

	rec := e.get(t, "/image-proxy/abc123/photo.jpg", "image/webp")

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, "public, s-maxage=60, max-age=60", rec.Header().Get("Cache-Control"))
}

func TestServeGIFPassthrough(t *testing.T) {
	source := gifBytes(t)
	e := newEnv(t, newUpstream(t, source, "image/gif"))

	rec := e.get(t, "/image-proxy/abc123/anim.gif", "image/avif,image/webp,image/*")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
	assert.Equal(t, source, rec.Body.Bytes())
}

func TestServeTranscodeFallback(t *testing.T) {
	// The upstream claims JPEG but serves garbage; the proxy must serve
	// the original bytes rather than fail.
	source := []byte("not actually a jpeg")
	e := newEnv(t, newUpstream(t, source, "image/jpeg"))

	rec := e.get(t, "/image-proxy/abc123/photo.jpg", "image/webp")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, source, rec.Body.Bytes())
}

func TestServeClampsParameters(t *testing.T) {
	e := newEnv(t, newUpstream(t, jpegBytes(t), "image/jpeg"))

	// Out-of-range parameters are clamped, never rejected.
	rec := e.get(t, "/image-proxy/abc123/photo.jpg?w=99999&q=1", "image/webp")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.get(t, "/image-proxy/abc123/photo.jpg?w=-3&q=200", "image/webp")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServeVariantStore(t *testing.T) {
	e := newEnv(t, newUpstream(t, jpegBytes(t), "image/jpeg"), withVariants(store.NewMemoryStore()))

	first := e.get(t, "/image-proxy/abc123/photo.jpg", "image/webp")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, 1, e.variants.Len())

	second := e.get(t, "/image-proxy/abc123/photo.jpg", "image/webp")
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "image/webp", second.Header().Get("Content-Type"))
	assert.Equal(t, first.Body.Bytes(), second.Body.Bytes())

	// The second request was served from the variant store without
	// touching the CMS or the CDN.
	assert.Equal(t, int64(1), e.cms.hits.Load())
	assert.Equal(t, int64(1), e.upstream.hits.Load())
}

func TestServeHealthz(t *testing.T) {
	e := newEnv(t, newUpstream(t, jpegBytes(t), "image/jpeg"))

	rec := e.get(t, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}
