package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// BlockLookup retrieves the current signed asset URL for a block id.
type BlockLookup interface {
	LookupBlock(ctx context.Context, blockID string) (string, error)
}

// CMSClient looks up content blocks against a Notion-style REST API. Block
// metadata is fetched with a bearer credential and a pinned API version;
// the interesting part of the response is the nested asset reference whose
// shape varies by block kind.
type CMSClient struct {
	baseURL string
	token   string
	version string
	client  *http.Client
	logger  *slog.Logger
}

// CMSOptions configures a CMSClient.
type CMSOptions struct {
	// BaseURL is the API root, e.g. "https://api.notion.com/v1".
	BaseURL string

	// Token is the bearer credential. An empty token is tolerated at
	// construction so the proxy can boot and serve 404s; every lookup then
	// fails as a logged configuration error.
	Token string

	// Version is sent as the Notion-Version header.
	Version string

	// Client defaults to a client with a 10 second timeout.
	Client *http.Client

	Logger *slog.Logger
}

// NewCMSClient creates a block-lookup client.
func NewCMSClient(opts CMSOptions) *CMSClient {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CMSClient{
		baseURL: opts.BaseURL,
		token:   opts.Token,
		version: opts.Version,
		client:  client,
		logger:  logger,
	}
}

// blockResponse mirrors the subset of the block payload the proxy needs.
// Exactly one of the kind fields is populated, matching Type.
type blockResponse struct {
	Type  string          `json:"type"`
	Image *assetReference `json:"image"`
	File  *assetReference `json:"file"`
	PDF   *assetReference `json:"pdf"`
	Video *assetReference `json:"video"`
}

// assetReference is either an upload (type "file", signed URL with a server
// controlled expiry) or an external link (type "external").
type assetReference struct {
	Type string `json:"type"`
	File *struct {
		URL        string    `json:"url"`
		ExpiryTime time.Time `json:"expiry_time"`
	} `json:"file"`
	External *struct {
		URL string `json:"url"`
	} `json:"external"`
}

// url extracts the fetchable URL from the reference, or "" when the shape
// is not recognised.
func (r *assetReference) url() string {
	if r == nil {
		return ""
	}
	switch r.Type {
	case "file":
		if r.File != nil {
			return r.File.URL
		}
	case "external":
		if r.External != nil {
			return r.External.URL
		}
	}
	return ""
}

// LookupBlock fetches the block and extracts its asset URL. Every failure
// mode (missing credential, transport error, non-2xx status, unknown block
// kind) collapses to ErrNotFound. Details are logged, not returned, so
// upstream internals never leak to clients.
func (c *CMSClient) LookupBlock(ctx context.Context, blockID string) (string, error) {
	if c.token == "" {
		c.logger.Error("cms credential is not configured", "block_id", blockID)
		return "", ErrNotFound
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/blocks/%s", c.baseURL, blockID), nil)
	if err != nil {
		c.logger.Error("failed to build block lookup request", "block_id", blockID, "error", err)
		return "", ErrNotFound
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", c.version)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("block lookup failed", "block_id", blockID, "error", err)
		return "", ErrNotFound
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("block lookup returned non-success status",
			"block_id", blockID,
			"status", resp.StatusCode,
		)
		return "", ErrNotFound
	}

	var block blockResponse
	if err := json.NewDecoder(resp.Body).Decode(&block); err != nil {
		c.logger.Error("failed to decode block payload", "block_id", blockID, "error", err)
		return "", ErrNotFound
	}

	var ref *assetReference
	switch block.Type {
	case "image":
		ref = block.Image
	case "file":
		ref = block.File
	case "pdf":
		ref = block.PDF
	case "video":
		ref = block.Video
	default:
		c.logger.Warn("block kind has no asset URL", "block_id", blockID, "kind", block.Type)
		return "", ErrNotFound
	}

	url := ref.url()
	if url == "" {
		c.logger.Warn("block reference has no extractable URL", "block_id", blockID, "kind", block.Type)
		return "", ErrNotFound
	}

	return url, nil
}
