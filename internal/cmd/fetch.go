package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/templates"

	"github.com/tomasbasham/image-proxy/internal/config"
	"github.com/tomasbasham/image-proxy/internal/fetch"
	"github.com/tomasbasham/image-proxy/internal/logging"
	"github.com/tomasbasham/image-proxy/internal/resolver"
)

type FetchOptions struct {
	cfg     *config.Config
	outFile *os.File

	ConfigPath string
	BlockID    string
	OutPath    string
	Timeout    time.Duration

	iooption.IOStreams
}

var (
	fetchLong = templates.LongDesc(`
		Resolve a block id and download its original asset bytes, without
		any transcoding.`)

	fetchExample = templates.Examples(`
		# Download a block's asset to a file
		imgproxy fetch 0e8dce0f-3a2c-4b7e-9a65-123456789abc -o cover.jpg

		# Stream it to stdout
		imgproxy fetch 0e8dce0f-3a2c-4b7e-9a65-123456789abc > cover.jpg`)
)

func NewFetchOptions(streams iooption.IOStreams) *FetchOptions {
	return &FetchOptions{
		IOStreams: streams,
	}
}

func NewFetchCommand(o *FetchOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "fetch [blockId]",
		DisableFlagsInUseLine: true,
		Short:                 "Download a block's original asset bytes",
		Long:                  fetchLong,
		Example:               fetchExample,
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
	flags.StringVarP(&o.OutPath, "out", "o", "", "Output file (default: stdout)")
	flags.DurationVarP(&o.Timeout, "timeout", "t", 10*time.Second, "Download timeout duration")

	return cmd
}

func (o *FetchOptions) Complete(_ *cobra.Command, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("block id is required")
	}
	o.BlockID = args[0]

	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return err
	}
	o.cfg = cfg
	return nil
}

func (o *FetchOptions) Validate() error {
	if o.BlockID == "" {
		return fmt.Errorf("block id is required")
	}

	if o.OutPath != "" {
		f, err := os.Create(o.OutPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		o.outFile = f // store for later cleanup.
	}

	return nil
}

func (o *FetchOptions) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if o.outFile != nil {
		defer o.outFile.Close()
	}

	logger := logging.New(logging.Options{
		Level:  o.cfg.LogLevel,
		Format: "text",
		Output: o.ErrOut,
	})

	res := newResolver(o.cfg, logger)

	url, err := res.Resolve(ctx, o.BlockID)
	if err != nil {
		return fmt.Errorf("failed to resolve block %q: %w", o.BlockID, err)
	}

	result, err := fetch.New(nil, o.Timeout).Fetch(ctx, url)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}

	if o.outFile != nil {
		if _, err := o.outFile.Write(result.Body); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintf(o.ErrOut, "Wrote %d bytes (%s) to %s\n", len(result.Body), result.ContentType, o.OutPath)
		return nil
	}

	if _, err := o.Out.Write(result.Body); err != nil {
		return fmt.Errorf("failed to write to stdout: %w", err)
	}
	return nil
}

// newResolver wires a cache-backed resolver from configuration, shared by
// the one-shot commands. The CLI path carries no metrics registry.
func newResolver(cfg *config.Config, logger *slog.Logger) *resolver.Resolver {
	cms := resolver.NewCMSClient(resolver.CMSOptions{
		BaseURL: cfg.CMSBaseURL,
		Token:   config.Token(),
		Version: cfg.CMSVersion,
		Logger:  logger,
	})

	return resolver.New(resolver.Options{
		Lookup: cms,
		Cache:  resolver.NewURLCache(cfg.CacheSize, cfg.CacheTTL),
		Logger: logger,
	})
}
