package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/templates"

	"github.com/tomasbasham/image-proxy/internal/config"
	"github.com/tomasbasham/image-proxy/internal/fetch"
	"github.com/tomasbasham/image-proxy/internal/logging"
	"github.com/tomasbasham/image-proxy/internal/metrics"
	"github.com/tomasbasham/image-proxy/internal/resolver"
	"github.com/tomasbasham/image-proxy/internal/server"
	"github.com/tomasbasham/image-proxy/internal/store"
	"github.com/tomasbasham/image-proxy/internal/transcode"
)

type ServeOptions struct {
	cfg *config.Config

	ConfigPath   string
	Port         int
	CMSBaseURL   string
	CacheSize    int
	CacheTTL     time.Duration
	FetchTimeout time.Duration
	CacheDir     string
	Bucket       string
	LogLevel     string
	LogFormat    string

	iooption.IOStreams
}

var (
	serveLong = templates.LongDesc(`
		Start the image proxy HTTP server.

		The CMS bearer credential is read from the CMS_TOKEN environment
		variable. Without it every block resolution fails with 404.`)

	serveExample = templates.Examples(`
		# Start on the default port
		imgproxy serve

		# Start with an on-disk variant cache
		imgproxy serve --cache-dir /var/cache/imgproxy

		# Start with a shared GCS variant cache
		imgproxy serve --port 9090 --bucket my-variant-bucket`)
)

func NewServeOptions(streams iooption.IOStreams) *ServeOptions {
	return &ServeOptions{
		IOStreams: streams,
	}
}

func NewServeCommand(o *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Start the image proxy HTTP server",
		Long:    serveLong,
		Example: serveExample,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(); err != nil {
				return err
			}
			if err := o.Run(); err != nil {
				return err
			}
			return nil
		},
	}

	flags := cmd.Flags()

	flags.StringVarP(&o.ConfigPath, "config", "c", "", "Path to a YAML configuration file")
	flags.IntVarP(&o.Port, "port", "p", 8080, "Port to listen on")
	flags.StringVar(&o.CMSBaseURL, "cms-url", "", "CMS API base URL")
	flags.IntVar(&o.CacheSize, "cache-size", 0, "Maximum number of cached signed URLs")
	flags.DurationVar(&o.CacheTTL, "cache-ttl", 0, "How long a resolved signed URL is trusted")
	flags.DurationVar(&o.FetchTimeout, "fetch-timeout", 0, "Deadline for a single upstream asset download")
	flags.StringVar(&o.CacheDir, "cache-dir", "", "Directory for the on-disk variant store")
	flags.StringVarP(&o.Bucket, "bucket", "b", "", "GCS bucket name for the variant store")
	flags.StringVar(&o.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&o.LogFormat, "log-format", "", "Log format (json, text)")

	return cmd
}

// Complete loads the configuration file and overlays any flags the user set
// explicitly.
func (o *ServeOptions) Complete(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = o.Port
	}
	if flags.Changed("cms-url") {
		cfg.CMSBaseURL = o.CMSBaseURL
	}
	if flags.Changed("cache-size") {
		cfg.CacheSize = o.CacheSize
	}
	if flags.Changed("cache-ttl") {
		cfg.CacheTTL = o.CacheTTL
	}
	if flags.Changed("fetch-timeout") {
		cfg.FetchTimeout = o.FetchTimeout
	}
	if flags.Changed("cache-dir") {
		cfg.CacheDir = o.CacheDir
	}
	if flags.Changed("bucket") {
		cfg.Bucket = o.Bucket
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.LogLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = o.LogFormat
	}

	o.cfg = cfg
	return nil
}

func (o *ServeOptions) Validate() error {
	if o.cfg.Port <= 0 || o.cfg.Port > 65535 {
		return fmt.Errorf("invalid port %d", o.cfg.Port)
	}
	for _, f := range o.cfg.Formats {
		if _, ok := transcode.ParseFormat(f); !ok {
			return fmt.Errorf("unknown negotiation format %q", f)
		}
	}
	return nil
}

func (o *ServeOptions) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := o.cfg

	logger := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: o.ErrOut,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	cache := resolver.NewURLCache(cfg.CacheSize, cfg.CacheTTL)
	cache.OnExpired(m.CacheExpired)

	token := config.Token()
	if token == "" {
		logger.Warn("CMS_TOKEN is not set; all block resolutions will fail")
	}

	cms := resolver.NewCMSClient(resolver.CMSOptions{
		BaseURL: cfg.CMSBaseURL,
		Token:   token,
		Version: cfg.CMSVersion,
		Logger:  logger,
	})

	res := resolver.New(resolver.Options{
		Lookup:  cms,
		Cache:   cache,
		Logger:  logger,
		Metrics: m,
	})

	var preferences []transcode.Format
	for _, f := range cfg.Formats {
		format, _ := transcode.ParseFormat(f)
		preferences = append(preferences, format)
	}

	variants, err := newVariantStore(ctx, cfg)
	if err != nil {
		return err
	}

	srv := server.New(server.Options{
		Resolver:       res,
		Fetcher:        fetch.New(nil, cfg.FetchTimeout),
		Transcoder:     transcode.New(preferences...),
		Variants:       variants,
		Logger:         logger,
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info("starting image proxy server", "addr", addr)
	return srv.ListenAndServe(ctx, addr)
}

// newVariantStore selects the variant store backend: GCS when a bucket is
// configured, disk when a directory is, otherwise none.
func newVariantStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch {
	case cfg.Bucket != "":
		s, err := store.NewGCSStore(ctx, cfg.Bucket)
		if err != nil {
			return nil, fmt.Errorf("failed to initialise GCS variant store: %w", err)
		}
		return s, nil
	case cfg.CacheDir != "":
		s, err := store.NewDiskStore(cfg.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialise disk variant store: %w", err)
		}
		return s, nil
	default:
		return nil, nil
	}
}
