package classify

import (
	"context"
	"net"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"appleroulette/internal/discovery"
	"appleroulette/internal/models"
	"appleroulette/internal/oui"
	"appleroulette/internal/probe"
)

// DefaultVendor is the organization name prefix hosts are matched against.
const DefaultVendor = "Apple"

// ServiceProber is satisfied by *probe.Prober.
type ServiceProber interface {
	Probe(ctx context.Context, ip net.IP) (probe.Result, error)
}

// Classifier decides vendor membership for discovered hosts. The OUI lookup
// is authoritative; the service probe only runs when it is inconclusive.
type Classifier struct {
	vendors oui.Lookup
	prober  ServiceProber
	vendor  string
	log     logrus.FieldLogger
}

// New returns a Classifier. An empty vendor means DefaultVendor.
func New(vendors oui.Lookup, prober ServiceProber, vendor string, log logrus.FieldLogger) *Classifier {
	if vendor == "" {
		vendor = DefaultVendor
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Classifier{vendors: vendors, prober: prober, vendor: vendor, log: log}
}

// Classify runs the decision policy for one host. The error is non-nil only
// when the service probe failed in a way that aborts the run.
func (c *Classifier) Classify(ctx context.Context, reply discovery.Reply) (models.Outcome, error) {
	if org, ok := c.vendors.Lookup(oui.Prefix(reply.MAC)); ok && strings.HasPrefix(org, c.vendor) {
		c.log.WithFields(logrus.Fields{"ip": reply.IP.String(), "org": org}).Debug("matched by hardware address")
		return models.MatchedByAddress, nil
	}

	c.log.Infof("running port check for %s", reply.IP)
	res, err := c.prober.Probe(ctx, reply.IP)
	if err != nil {
		return models.NoMatch, err
	}
	c.log.WithFields(logrus.Fields{"ip": reply.IP.String(), "result": res.String()}).Debug("port check finished")
	if res == probe.Present {
		return models.MatchedByService, nil
	}
	return models.NoMatch, nil
}

// ClassifyAll classifies replies with at most workers probes in flight and
// returns records in the same order as replies. The first error cancels the
// remaining work and is returned.
func (c *Classifier) ClassifyAll(ctx context.Context, replies []discovery.Reply, workers int) ([]models.ScanRecord, error) {
	if workers < 1 {
		workers = 1
	}
	records := make([]models.ScanRecord, len(replies))
	for i, r := range replies {
		records[i] = models.ScanRecord{IP: r.IP, MAC: r.MAC}
	}

	if workers == 1 {
		for i, r := range replies {
			outcome, err := c.Classify(ctx, r)
			if err != nil {
				return nil, err
			}
			records[i].Outcome = outcome
		}
		return records, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	sem := make(chan struct{}, workers)

	for i, r := range replies {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(i int, r discovery.Reply) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome, err := c.Classify(ctx, r)
			if err != nil {
				once.Do(func() {
					firstErr = err
					cancel()
				})
				return
			}
			records[i].Outcome = outcome
		}(i, r)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
