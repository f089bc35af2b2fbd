// Package server provides the HTTP surface of the image proxy.
//
// Endpoints:
//
//	GET /image-proxy/{blockId}/{fileName}  resolve, fetch, transcode, serve
//	GET /healthz                           liveness probe
//	GET /metrics                           Prometheus metrics
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tomasbasham/image-proxy/internal/fetch"
	"github.com/tomasbasham/image-proxy/internal/metrics"
	"github.com/tomasbasham/image-proxy/internal/resolver"
	"github.com/tomasbasham/image-proxy/internal/store"
	"github.com/tomasbasham/image-proxy/internal/transcode"
)

// Success responses are effectively immutable: the bytes for a given
// block+format are stable, so clients and CDNs may cache for a year and
// revalidate lazily. Error responses self-heal within a minute instead.
const (
	successCacheControl = "public, s-maxage=31536000, max-age=31536000, immutable, stale-while-revalidate=2592000"
	errorCacheControl   = "public, s-maxage=60, max-age=60"
)

// Server holds the dependencies shared across HTTP handlers.
type Server struct {
	resolver   *resolver.Resolver
	fetcher    *fetch.Fetcher
	transcoder *transcode.Transcoder

	// variants is the optional second-level store for transcoded output.
	// Nil disables persistence and every request re-fetches and re-encodes.
	variants store.Store

	logger  *slog.Logger
	metrics *metrics.Metrics
	mux     *http.ServeMux
}

// Options configures a Server. Resolver, Fetcher and Transcoder are
// required; the rest are optional.
type Options struct {
	Resolver   *resolver.Resolver
	Fetcher    *fetch.Fetcher
	Transcoder *transcode.Transcoder
	Variants   store.Store
	Logger     *slog.Logger
	Metrics    *metrics.Metrics

	// MetricsHandler, when non-nil, is mounted at /metrics.
	MetricsHandler http.Handler
}

// New creates a Server wired to the given collaborators.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		resolver:   opts.Resolver,
		fetcher:    opts.Fetcher,
		transcoder: opts.Transcoder,
		variants:   opts.Variants,
		logger:     logger,
		metrics:    opts.Metrics,
	}

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("GET /image-proxy/{blockId}/{fileName}", s.handleImage)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if opts.MetricsHandler != nil {
		s.mux.Handle("GET /metrics", opts.MetricsHandler)
	}

	return s
}

// Handler returns the fully middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.withRequestID(s.withRecovery(s.mux))
}

// ListenAndServe starts the HTTP server on the given address and shuts it
// down gracefully when ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	blockID := r.PathValue("blockId")
	accept := r.Header.Get("Accept")
	width := transcode.ClampWidth(intQuery(r, "w"))
	quality := transcode.ClampQuality(intQuery(r, "q"))

	logger := s.requestLogger(r).With("block_id", blockID)

	// When negotiation is settled by the Accept header alone the variant
	// may already be persisted, short-circuiting resolution entirely.
	if format, ok := s.transcoder.Preferred(accept); ok {
		key := variantKey(blockID, format, width, quality)
		if obj := s.variantLookup(r.Context(), key, logger); obj != nil {
			s.writeImage(w, obj.ContentType, obj.Body)
			return
		}
	}

	sourceURL, err := s.resolver.Resolve(r.Context(), blockID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "image not found")
		return
	}

	source, err := s.fetcher.Fetch(r.Context(), sourceURL)
	if err != nil {
		switch {
		case errors.Is(err, fetch.ErrUpstreamTimeout):
			logger.Error("upstream fetch timed out", "error", err)
			s.writeError(w, http.StatusGatewayTimeout, "upstream timed out")
		default:
			logger.Error("upstream fetch failed", "error", err)
			s.writeError(w, http.StatusBadGateway, "upstream fetch failed")
		}
		return
	}

	// Animated sources bypass the transcoder: re-encoding would keep only
	// the first frame.
	if transcode.IsAnimated(source.ContentType) {
		s.metrics.Transcode("passthrough")
		s.writeImage(w, source.ContentType, source.Body)
		return
	}

	result, err := s.transcoder.Transcode(transcode.Request{
		Source:      source.Body,
		ContentType: source.ContentType,
		Accept:      accept,
		Width:       width,
		Quality:     quality,
	})
	if err != nil {
		// Serving an unoptimized original beats serving an error for an
		// image-display use case.
		logger.Warn("transcode failed, serving original bytes", "error", err)
		s.metrics.Fallback()
		s.writeImage(w, source.ContentType, source.Body)
		return
	}

	s.metrics.Transcode(string(result.Format))
	s.variantSave(r.Context(), variantKey(blockID, result.Format, width, quality), result, logger)
	s.writeImage(w, result.ContentType, result.Body)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// variantLookup consults the variant store, treating every failure as a
// miss.
func (s *Server) variantLookup(ctx context.Context, key store.Key, logger *slog.Logger) *store.Object {
	if s.variants == nil {
		return nil
	}
	obj, err := s.variants.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotExist) {
			logger.Warn("variant store read failed", "key", key.ObjectName(), "error", err)
		}
		return nil
	}
	return obj
}

// variantSave persists a transcoded variant. Failures are logged and
// otherwise ignored; the response has already been produced.
func (s *Server) variantSave(ctx context.Context, key store.Key, result *transcode.Result, logger *slog.Logger) {
	if s.variants == nil {
		return
	}
	err := s.variants.Put(ctx, key, &store.Object{
		Body:        result.Body,
		ContentType: result.ContentType,
	})
	if err != nil {
		logger.Warn("variant store write failed", "key", key.ObjectName(), "error", err)
	}
}

func variantKey(blockID string, format transcode.Format, width, quality int) store.Key {
	return store.Key{
		BlockID: blockID,
		Format:  string(format),
		Width:   width,
		Quality: quality,
	}
}

func (s *Server) writeImage(w http.ResponseWriter, contentType string, body []byte) {
	s.metrics.Request(strconv.Itoa(http.StatusOK))
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Cache-Control", successCacheControl)
	h.Set("Vary", "Accept")
	h.Set("Accept-CH", "DPR, Width, Viewport-Width")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.metrics.Request(strconv.Itoa(status))
	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", errorCacheControl)
	h.Set("Vary", "Accept")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}

// intQuery parses an integer query parameter, returning 0 when absent or
// malformed. Out-of-range values are clamped by the caller, never rejected.
func intQuery(r *http.Request, name string) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
