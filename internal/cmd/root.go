package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cliflag "github.com/tomasbasham/cli-runtime/flag"
	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/printer"
	"github.com/tomasbasham/cli-runtime/templates"
)

var (
	rootLong = templates.LongDesc(`
		imgproxy resolves CMS content blocks to signed asset URLs and serves
		their images transcoded to the best format each client accepts.`)

	rootExamples = templates.Examples(`
		# Start the proxy server
		imgproxy serve

		# Print the current signed URL for a block
		imgproxy resolve 0e8dce0f-3a2c-4b7e-9a65-123456789abc`)

	// Injected at build time using ldflags.
	version = ""
	commit  = ""
)

// ProxyOptions defines the options for the `imgproxy` command.
type ProxyOptions struct {
	iooption.IOStreams
}

// NewProxyOptions provides an initialised ProxyOptions instance.
func NewProxyOptions(streams iooption.IOStreams) *ProxyOptions {
	return &ProxyOptions{
		IOStreams: streams,
	}
}

// NewRootCommand creates the `imgproxy` command with default arguments.
func NewRootCommand() *cobra.Command {
	options := NewProxyOptions(iooption.IOStreams{
		In:     os.Stdin,
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	})

	return NewRootCommandWithArgs(options)
}

// NewRootCommandWithArgs creates the `imgproxy` command and its nested
// children.
func NewRootCommandWithArgs(o *ProxyOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "imgproxy [command]",
		Version:               versionInfo(),
		DisableFlagsInUseLine: true,
		Short:                 "Image resolution and transcoding proxy",
		Long:                  rootLong,
		Example:               rootExamples,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}

	printerOpts := printer.WarningPrinterOptions{Color: true}
	printer := printer.NewWarningPrinter(o.ErrOut, printerOpts)
	cmd.SetGlobalNormalizationFunc(cliflag.WarnWordSepNormalizeFunc(printer))

	cmd.AddCommand(NewServeCommand(NewServeOptions(o.IOStreams)))
	cmd.AddCommand(NewResolveCommand(NewResolveOptions(o.IOStreams)))
	cmd.AddCommand(NewFetchCommand(NewFetchOptions(o.IOStreams)))

	// The globlal normalisation function ensures that all flags specified meet
	// the desired format, changing users' input if necessary.
	cmd.SetGlobalNormalizationFunc(cliflag.WordSepNormalizeFunc())

	return cmd
}

func versionInfo() string {
	if version == "" {
		return ""
	}
	return fmt.Sprintf("%s (commit: %s)", version, commit)
}
