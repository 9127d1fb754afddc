package launcher

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-adex-validator/adapter"
	"github.com/rony4d/go-adex-validator/adapter/dummy"
	"github.com/rony4d/go-adex-validator/adapter/ethereum"
	"github.com/rony4d/go-adex-validator/inter/validatorid"
	"github.com/rony4d/go-adex-validator/journal"
	"github.com/rony4d/go-adex-validator/sentry"
	"github.com/rony4d/go-adex-validator/worker"
)

// node owns the worker and the resources it was built on.
type node struct {
	cfg      Config
	log      logrus.FieldLogger
	adapter  adapter.Unlocked
	journal  *journal.Journal
	registry *prometheus.Registry
	worker   *worker.Worker

	metricsSrv *http.Server
	closers    []func()
}

func newNode(ctx context.Context, cfg Config, log *logrus.Logger) (_ *node, err error) {
	n := &node{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			n.Close()
		}
	}()

	if n.adapter, err = n.makeAdapter(ctx); err != nil {
		return nil, err
	}

	store, propagator, err := n.makeSentry()
	if err != nil {
		return nil, err
	}

	if cfg.Node.DataDir == "" {
		n.journal = journal.NewMemory()
	} else {
		dir := filepath.Join(cfg.Node.DataDir, "journal")
		if n.journal, err = journal.Open(dir, cfg.Node.CacheMB, DefaultHandles); err != nil {
			return nil, fmt.Errorf("open journal %s: %w", dir, err)
		}
	}
	n.closers = append(n.closers, func() {
		if err := n.journal.Close(); err != nil {
			log.WithError(err).Warn("Failed to close journal")
		}
	})

	n.registry.MustRegister(prometheus.NewGoCollector())
	n.registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	n.worker = worker.New(cfg.Worker, worker.Deps{
		Adapter:    n.adapter,
		Sentry:     store,
		Propagator: propagator,
		Journal:    n.journal,
		Metrics:    worker.NewMetrics(n.registry),
		Log:        log,
	})
	return n, nil
}

func (n *node) makeAdapter(ctx context.Context) (adapter.Unlocked, error) {
	var locked adapter.Unlockable
	switch n.cfg.Node.Adapter {
	case AdapterEthereum:
		client, err := ethereum.Dial(ctx, n.cfg.Worker.Chain)
		if err != nil {
			return nil, err
		}
		n.closers = append(n.closers, client.Close)
		eth, err := ethereum.New(ethereum.Options{
			KeystoreFile: n.cfg.Node.KeystoreFile,
			KeystorePwd:  n.cfg.Node.KeystorePwd,
		}, n.cfg.Worker.Chain, client)
		if err != nil {
			return nil, err
		}
		locked = eth
	case AdapterDummy:
		id, err := validatorid.FromString(n.cfg.Node.DummyIdentity)
		if err != nil {
			return nil, fmt.Errorf("--dummyIdentity: %w", err)
		}
		locked = dummy.New(dummy.Options{Identity: id, ChainID: n.cfg.Worker.Chain.ChainID})
	default:
		return nil, fmt.Errorf("unknown adapter %q", n.cfg.Node.Adapter)
	}
	return locked.Unlock()
}

func (n *node) makeSentry() (worker.Sentry, worker.Propagator, error) {
	if n.cfg.Node.SentryURL == "" {
		if n.cfg.Node.Adapter != AdapterDummy {
			return nil, nil, fmt.Errorf("an in-memory sentry needs the %s adapter", AdapterDummy)
		}
		n.log.Warn("No sentry URL, using an in-memory sentry")
		store := sentry.NewMemoryStore()
		return store, store.Propagator(n.adapter.Whoami()), nil
	}
	client := sentry.NewClient(n.cfg.Node.SentryURL, n.adapter, n.cfg.Worker.FetchTimeout.Std(), n.log)
	propagator := sentry.NewPropagator(n.adapter, n.cfg.Worker.PropagationTimeout.Std(), n.log)
	return client, propagator, nil
}

// Whoami is the identity the worker signs as.
func (n *node) Whoami() validatorid.ID {
	return n.adapter.Whoami()
}

// StartMetrics serves the registry on MetricsAddr, if set.
func (n *node) StartMetrics() {
	if n.cfg.Node.MetricsAddr == "" {
		return
	}
	n.metricsSrv = &http.Server{
		Addr:    n.cfg.Node.MetricsAddr,
		Handler: promhttp.HandlerFor(n.registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := n.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			n.log.WithError(err).Error("Metrics server failed")
		}
	}()
	n.log.WithField("addr", n.cfg.Node.MetricsAddr).Info("Serving metrics")
}

// Close releases everything newNode acquired, in reverse order.
func (n *node) Close() {
	if n.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = n.metricsSrv.Shutdown(ctx)
		cancel()
	}
	for i := len(n.closers) - 1; i >= 0; i-- {
		n.closers[i]()
	}
	n.closers = nil
}
