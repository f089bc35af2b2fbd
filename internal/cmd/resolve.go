package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/templates"

	"github.com/tomasbasham/image-proxy/internal/config"
	"github.com/tomasbasham/image-proxy/internal/logging"
)

type ResolveOptions struct {
	cfg *config.Config

	ConfigPath string
	BlockID    string

	iooption.IOStreams
}

var (
	resolveLong = templates.LongDesc(`
		Resolve a block id to its current signed asset URL and print it.

		Signed URLs are time-limited; the printed URL is typically valid
		for under an hour.`)

	resolveExample = templates.Examples(`
		# Print the signed URL for a block
		imgproxy resolve 0e8dce0f-3a2c-4b7e-9a65-123456789abc`)
)

func NewResolveOptions(streams iooption.IOStreams) *ResolveOptions {
	return &ResolveOptions{
		IOStreams: streams,
	}
}

func NewResolveCommand(o *ResolveOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "resolve [blockId]",
		DisableFlagsInUseLine: true,
		Short:                 "Resolve a block id to its signed asset URL",
		Long:                  resolveLong,
		Example:               resolveExample,
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

	cmd.Flags().StringVarP(&o.ConfigPath, "config", "c", "", "Path to a YAML configuration file")

	return cmd
}

func (o *ResolveOptions) Complete(_ *cobra.Command, args []string) error {
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

func (o *ResolveOptions) Validate() error {
	if o.BlockID == "" {
		return fmt.Errorf("block id is required")
	}
	return nil
}

func (o *ResolveOptions) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res := newResolver(o.cfg, logging.New(logging.Options{
		Level:  o.cfg.LogLevel,
		Format: "text",
		Output: o.ErrOut,
	}))

	url, err := res.Resolve(ctx, o.BlockID)
	if err != nil {
		return fmt.Errorf("failed to resolve block %q: %w", o.BlockID, err)
	}

	fmt.Fprintln(o.Out, url)
	return nil
}
