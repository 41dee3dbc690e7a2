package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"

	"appleroulette/internal/app"
	"appleroulette/internal/classify"
	"appleroulette/internal/config"
	"appleroulette/internal/discovery"
	"appleroulette/internal/halt"
	"appleroulette/internal/metrics"
	"appleroulette/internal/oui"
	"appleroulette/internal/probe"
	"appleroulette/internal/reporting"
	"appleroulette/internal/tui"
)

func run(ctx context.Context, out io.Writer, cfg *config.Config, interactive bool) error {
	logger := log.StandardLogger()

	iface, err := discovery.SelectInterface(cfg.Scan.Interface)
	if err != nil {
		return fmt.Errorf("cannot find interface to scan: %w", err)
	}
	logger.WithFields(log.Fields{"interface": iface.Name, "ip": iface.IP.String(), "network": iface.Network.String()}).
		Info("selected interface")

	vendors := loadVendors(ctx, cfg.OUI, logger)

	link, err := discovery.OpenPcap(iface.Name, cfg.Scan.ReadTimeout)
	if err != nil {
		return err
	}
	defer link.Close()

	runner := newRunner(cfg, vendors, logger)

	if interactive {
		return runInteractive(ctx, cfg, runner, iface, link)
	}

	runner.Report = func(res *app.Result) error {
		fmt.Fprint(out, reporting.Render(res.Records, res.Summary))
		return writeArtifacts(cfg, runner.Metrics, res)
	}
	_, err = runner.Run(ctx, iface, link, link)
	return err
}

func scanConfig(cfg *config.Config) discovery.ScanConfig {
	return discovery.ScanConfig{
		StartupDelay: cfg.Scan.StartupDelay,
		Pacing:       cfg.Scan.Pacing,
		Grace:        cfg.Scan.Grace,
		MaxHosts:     cfg.Scan.MaxHosts,
	}
}

func newRunner(cfg *config.Config, vendors oui.Lookup, logger log.FieldLogger) *app.Runner {
	scanner := discovery.NewScanner(scanConfig(cfg), logger)
	prober := probe.New(probe.Config{Port: cfg.Probe.Port, Timeout: cfg.Probe.Timeout})

	var action halt.Action = halt.Command{Name: cfg.Halt.Command, Args: cfg.Halt.Args, Log: logger}
	if cfg.Halt.DryRun {
		action = halt.DryRun{Log: logger}
	}

	return &app.Runner{
		Scanner:    scanner,
		Classifier: classify.New(vendors, prober, cfg.Vendor, logger),
		Threshold:  cfg.PanicAfter,
		Workers:    cfg.Workers,
		Halt:       action,
		Metrics:    metrics.New(),
		Log:        logger,
	}
}

// loadVendors prefers the downloaded IEEE table and falls back to the
// compiled-in one.
func loadVendors(ctx context.Context, cfg config.OUIConfig, logger log.FieldLogger) oui.Lookup {
	if cfg.Offline {
		logger.Info("using compiled-in OUI table")
		return oui.Embedded{}
	}
	cache := &oui.Cache{Path: cfg.Path, URL: cfg.URL, MaxAge: cfg.MaxAge, Log: logger}
	db, err := cache.Load(ctx)
	if err != nil {
		logger.WithError(err).Warn("OUI database unavailable, using compiled-in table")
		return oui.Embedded{}
	}
	return db
}

func writeArtifacts(cfg *config.Config, m *metrics.Run, res *app.Result) error {
	if cfg.Report.HTMLDir != "" {
		path, err := reporting.WriteHTML(cfg.Report.HTMLDir, res.Records, res.Summary)
		if err != nil {
			return err
		}
		log.WithField("path", path).Info("HTML report written")
	}
	if cfg.Metrics.Textfile != "" && m != nil {
		if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			return err
		}
	}
	return nil
}

// sweepNotifier tells the TUI how many hosts answered once the sweep is over.
type sweepNotifier struct {
	*discovery.Scanner
	swept func(hosts int)
}

func (s sweepNotifier) Scan(ctx context.Context, iface discovery.Interface, tx discovery.FrameSender, rx discovery.FrameReceiver) ([]discovery.Reply, error) {
	replies, err := s.Scanner.Scan(ctx, iface, tx, rx)
	if err == nil {
		s.swept(len(replies))
	}
	return replies, err
}

func runInteractive(ctx context.Context, cfg *config.Config, runner *app.Runner, iface discovery.Interface, link *discovery.PcapLink) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(tui.NewScanModel(iface.Name), tea.WithContext(ctx))

	sc := scanConfig(cfg)
	sc.Progress = func(sent, total int) {
		p.Send(tui.ProgressMsg{Sent: sent, Total: total})
	}
	runner.Scanner = sweepNotifier{
		Scanner: discovery.NewScanner(sc, runner.Log),
		swept:   func(hosts int) { p.Send(tui.ClassifyingMsg{Hosts: hosts}) },
	}

	// The halt action must not run while the TUI still owns the terminal.
	programDone := make(chan struct{})
	runner.Report = func(res *app.Result) error {
		artifactErr := writeArtifacts(cfg, runner.Metrics, res)
		p.Send(tui.DoneMsg{Result: res})
		return errors.Join(artifactErr, waitForTUI(ctx, programDone))
	}

	runErr := make(chan error, 1)
	go func() {
		_, err := runner.Run(ctx, iface, link, link)
		if err != nil {
			p.Send(tui.DoneMsg{Err: err})
		}
		runErr <- err
	}()

	final, err := p.Run()
	interrupted, tuiErr := releaseTUI(final, err, cancel, programDone)
	runnerErr := <-runErr
	switch {
	case tuiErr != nil:
		return tuiErr
	case interrupted && errors.Is(runnerErr, context.Canceled):
		return nil
	}
	return runnerErr
}

// waitForTUI blocks until the TUI has exited and reports whether the run was
// cancelled meanwhile.
func waitForTUI(ctx context.Context, programDone <-chan struct{}) error {
	<-programDone
	return ctx.Err()
}

// releaseTUI cancels the run when the TUI failed or the user quit early, and
// only then unblocks waitForTUI, so an interrupted run never reaches the halt.
func releaseTUI(final tea.Model, runErr error, cancel context.CancelFunc, programDone chan<- struct{}) (bool, error) {
	defer close(programDone)

	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		cancel()
		return true, fmt.Errorf("tui: %w", runErr)
	}
	if m, ok := final.(tui.ScanModel); ok && m.Interrupted() {
		cancel()
		return true, nil
	}
	return false, nil
}
