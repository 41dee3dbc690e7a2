package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"appleroulette/internal/config"
)

type options struct {
	configPath      string
	panicAfter      int
	vendor          string
	iface           string
	workers         int
	offline         bool
	ouiPath         string
	dryRun          bool
	htmlReport      string
	metricsTextfile string
	tui             bool
	verbose         int
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "appleroulette",
		Short: "Count the devices of one vendor on the local network",
		Long: `appleroulette sweeps the local IPv4 subnet with ARP requests, decides for
every host that answers whether it was made by the configured vendor
(hardware address prefix first, then a TCP check of the device sync port)
and halts the machine when more than --panic-after hosts match.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if err := opts.apply(cmd.Flags(), cfg); err != nil {
				return err
			}
			setupLogging(opts.verbose, opts.tui)
			return run(cmd.Context(), cmd.OutOrStdout(), cfg, opts.tui)
		},
	}

	defaults := config.Default()
	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	f.IntVarP(&opts.panicAfter, "panic-after", "p", defaults.PanicAfter, "halt when more hosts than this match")
	f.StringVar(&opts.vendor, "vendor", defaults.Vendor, "organization name prefix to match")
	f.StringVarP(&opts.iface, "interface", "i", "", "network interface to scan (default: first usable)")
	f.IntVarP(&opts.workers, "workers", "w", defaults.Workers, "concurrent port checks")
	f.BoolVar(&opts.offline, "offline", false, "use the compiled-in OUI table instead of downloading")
	f.StringVar(&opts.ouiPath, "oui-path", defaults.OUI.Path, "OUI database cache file")
	f.BoolVar(&opts.dryRun, "dry-run", false, "log instead of halting")
	f.StringVar(&opts.htmlReport, "html-report", "", "write an HTML report into this directory")
	f.StringVar(&opts.metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file")
	f.BoolVar(&opts.tui, "tui", false, "show an interactive progress view")
	f.CountVarP(&opts.verbose, "verbose", "v", "increase log verbosity (-v info, -vv debug)")
	return cmd
}

// apply overrides config values with the flags set on the command line.
func (o *options) apply(flags *pflag.FlagSet, cfg *config.Config) error {
	if flags.Changed("panic-after") {
		cfg.PanicAfter = o.panicAfter
	}
	if flags.Changed("vendor") {
		cfg.Vendor = o.vendor
	}
	if flags.Changed("interface") {
		cfg.Scan.Interface = o.iface
	}
	if flags.Changed("workers") {
		cfg.Workers = o.workers
	}
	if flags.Changed("offline") {
		cfg.OUI.Offline = o.offline
	}
	if flags.Changed("oui-path") {
		cfg.OUI.Path = o.ouiPath
	}
	if flags.Changed("dry-run") {
		cfg.Halt.DryRun = o.dryRun
	}
	if flags.Changed("html-report") {
		cfg.Report.HTMLDir = o.htmlReport
	}
	if flags.Changed("metrics-textfile") {
		cfg.Metrics.Textfile = o.metricsTextfile
	}
	return cfg.Validate()
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}
