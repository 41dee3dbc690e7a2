package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"appleroulette/internal/discovery"
	"appleroulette/internal/halt"
	"appleroulette/internal/metrics"
	"appleroulette/internal/models"
	"appleroulette/internal/reporting"
)

// Scanner is satisfied by *discovery.Scanner.
type Scanner interface {
	Scan(ctx context.Context, iface discovery.Interface, tx discovery.FrameSender, rx discovery.FrameReceiver) ([]discovery.Reply, error)
	Stats() discovery.Stats
}

// Classifier is satisfied by *classify.Classifier.
type Classifier interface {
	ClassifyAll(ctx context.Context, replies []discovery.Reply, workers int) ([]models.ScanRecord, error)
}

// Result is everything one run produced.
type Result struct {
	Records []models.ScanRecord
	Summary reporting.Summary
	Stats   discovery.Stats
	Halted  bool
}

// Runner wires one scan, classify, report and halt cycle.
type Runner struct {
	Scanner    Scanner
	Classifier Classifier
	Threshold  int
	Workers    int
	Halt       halt.Action
	// Metrics is optional.
	Metrics *metrics.Run
	// Report, if set, is called with the finished result before the halt
	// action runs.
	Report func(*Result) error
	Log    logrus.FieldLogger
}

// Run performs the cycle on iface. The halt action fires at most once, when
// the number of matched hosts is strictly greater than Threshold.
func (r *Runner) Run(ctx context.Context, iface discovery.Interface, tx discovery.FrameSender, rx discovery.FrameReceiver) (*Result, error) {
	log := r.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	replies, err := r.Scanner.Scan(ctx, iface, tx, rx)
	if err != nil {
		return nil, fmt.Errorf("arp scan: %w", err)
	}
	stats := r.Scanner.Stats()
	if r.Metrics != nil {
		r.Metrics.ObserveScan(len(replies), stats.Sent, stats.SendErrors, stats.Duration)
	}

	started := time.Now()
	records, err := r.Classifier.ClassifyAll(ctx, replies, r.Workers)
	if err != nil {
		return nil, fmt.Errorf("classify hosts: %w", err)
	}
	log.WithField("took", time.Since(started).Round(time.Millisecond)).Debug("classification finished")

	res := &Result{
		Records: records,
		Summary: reporting.Summarize(records, r.Threshold),
		Stats:   stats,
	}
	res.Halted = halt.Exceeded(res.Summary.Matched, r.Threshold)
	if r.Metrics != nil {
		r.Metrics.ObserveRecords(records, r.Threshold)
		r.Metrics.ObserveHalt(res.Halted)
	}

	var reportErr error
	if r.Report != nil {
		if err := r.Report(res); err != nil {
			reportErr = fmt.Errorf("report: %w", err)
			log.WithError(err).Error("could not write report")
		}
	}
	// A cancelled run never reaches the halt action.
	if err := ctx.Err(); err != nil {
		return res, errors.Join(reportErr, err)
	}

	if res.Halted {
		log.WithFields(logrus.Fields{"matched": res.Summary.Matched, "threshold": r.Threshold}).Warn("too many matches")
		if r.Halt == nil {
			return res, errors.Join(reportErr, errors.New("threshold exceeded but no halt action configured"))
		}
		if err := r.Halt.Halt(ctx, res.Summary.Matched, r.Threshold); err != nil {
			return res, errors.Join(reportErr, fmt.Errorf("halt: %w", err))
		}
	}
	return res, reportErr
}
