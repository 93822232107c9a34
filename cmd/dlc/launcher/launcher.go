// Package launcher parses the command line, assembles the node's subsystems
// and runs the consensus loop until the round budget is spent or the process
// is interrupted.
package launcher

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"

	"github.com/dlc-foundation/go-dlc/dlc"
	"github.com/dlc-foundation/go-dlc/flags"
	"github.com/dlc-foundation/go-dlc/integration"
	"github.com/dlc-foundation/go-dlc/inter/hashtime"
	"github.com/dlc-foundation/go-dlc/inter/validatorpk"
	"github.com/dlc-foundation/go-dlc/metrics"
	"github.com/dlc-foundation/go-dlc/round"
	"github.com/dlc-foundation/go-dlc/store"
)

var app = flags.NewApp()

func init() {
	app.Flags = append(app.Flags, flags.CommonFlags()...)
	app.Flags = append(app.Flags, flags.NetworkFlags()...)
	app.Flags = append(app.Flags, flags.NodeFlags()...)
	app.Action = runNode
}

// Launch parses args and runs the node.
func Launch(args []string) error {
	return app.Run(args)
}

func runNode(ctx *cli.Context) error {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	setupLogging(cfg.Logging)
	log := logrus.WithField("module", "launcher")

	rules, err := rulesForNetwork(cfg.Network.Name)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"network": rules.Name,
		"id":      rules.NetworkID,
		"datadir": cfg.Node.DataDir,
	}).Info("starting node")

	if cfg.Validator.PubKey != "" {
		key, err := validatorpk.FromString(cfg.Validator.PubKey)
		if err != nil {
			return fmt.Errorf("validator pubkey: %w", err)
		}
		log.WithField("validator", key.ValidatorID().String()).Info("validator identity loaded")
	}

	db, err := store.OpenLevelDB(cfg.Node.ChainDataDir)
	if err != nil {
		return fmt.Errorf("open chaindata at %s: %w", cfg.Node.ChainDataDir, err)
	}
	defer db.Close()

	met := metrics.New()
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = serveMetrics(met, cfg.Metrics, log)
		defer metricsSrv.Close()
	}

	if rules.Name != "fake" {
		return fmt.Errorf("network %q needs peers; only fakenet runs standalone", rules.Name)
	}
	return runFakeNet(cfg, rules, db, met, log)
}

// runFakeNet drives a deterministic in-process network: every validator slot
// lives in this process and rounds finalize as fast as the machine allows.
func runFakeNet(cfg Config, rules dlc.Rules, db store.Store, met *metrics.Metrics, log *logrus.Entry) error {
	clock := hashtime.NewClock(hashtime.DefaultClockConfig(), nil)

	net, err := integration.NewHarness(integration.Config{
		Rules:            rules,
		Validators:       integration.FakeValidators(cfg.Network.FakeValidators, 100*rules.Economy.MinStakeMicro),
		DB:               db,
		Metrics:          met,
		FeePerBlockMicro: cfg.Network.FakeFeeMicro,
		Clock:            clock,
	})
	if err != nil {
		return err
	}

	if cfg.Validator.ModelPath != "" {
		if err := net.Models().ActivateFile(cfg.Validator.ModelPath); err != nil {
			return fmt.Errorf("activate model %s: %w", cfg.Validator.ModelPath, err)
		}
		log.WithField("path", cfg.Validator.ModelPath).Info("scoring model activated")
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{
		"validators": cfg.Network.FakeValidators,
		"rounds":     cfg.Network.FakeRounds,
	}).Info("fakenet running")

	for i := 0; cfg.Network.FakeRounds == 0 || i < cfg.Network.FakeRounds; i++ {
		if runCtx.Err() != nil {
			break
		}
		res, err := net.RunRound(runCtx)
		if err != nil {
			return fmt.Errorf("round %d: %w", net.Round()+1, err)
		}
		entry := log.WithFields(logrus.Fields{
			"round":  net.Round(),
			"state":  res.State.String(),
			"blocks": len(res.Ordered),
			"issued": net.IssuedMicro(),
		})
		if res.State == round.Distributed {
			entry.Debug("round finalized")
		} else {
			entry.Warn("round aborted")
		}
	}

	log.WithFields(logrus.Fields{
		"rounds": net.Round(),
		"issued": net.IssuedMicro(),
		"burned": net.BurnedMicro(),
	}).Info("fakenet stopped")
	return nil
}

func rulesForNetwork(name string) (dlc.Rules, error) {
	switch name {
	case "main":
		return dlc.MainNetRules(), nil
	case "test":
		return dlc.TestNetRules(), nil
	case "fake":
		return dlc.FakeNetRules(), nil
	default:
		return dlc.Rules{}, fmt.Errorf("unknown network preset %q", name)
	}
}

func setupLogging(cfg LoggingConfig) {
	if cfg.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			ForceColors:   cfg.Color,
			DisableColors: !cfg.Color,
			FullTimestamp: true,
		})
	}
	level := logrus.Level(cfg.Verbosity)
	if level > logrus.TraceLevel {
		level = logrus.TraceLevel
	}
	logrus.SetLevel(level)
}

func serveMetrics(met *metrics.Metrics, cfg MetricsConfig, log *logrus.Entry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", met.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Addr, cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server failed")
		}
	}()
	log.WithField("addr", srv.Addr).Info("metrics endpoint up")
	return srv
}
