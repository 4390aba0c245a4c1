package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/abcforge/abcsim/internal/models"
	"github.com/abcforge/abcsim/pkg/algorithms"
	"github.com/abcforge/abcsim/pkg/config"
	"github.com/abcforge/abcsim/pkg/journal"
	"github.com/abcforge/abcsim/pkg/reporting"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Args:  cobra.NoArgs,
	Short: "Run the configured ABC sampler",
	Long:  `Loads the run configuration and executes the selected algorithm against the built-in demonstration model.`,
	RunE:  runSampler,
}

func init() {
	runCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9100); empty falls back to reporting.metrics_addr, and metrics are off only when both are empty")
}

func runSampler(cmd *cobra.Command, args []string) error {
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logLevel := reporting.ParseLogLevel(cfg.Run.LogLevel)
	if verbose {
		logLevel = reporting.LogLevelDebug
	}
	logger := reporting.NewLogger(reporting.LoggerConfig{
		Level:  logLevel,
		Format: reporting.LogFormat(cfg.Run.LogFormat),
		Output: os.Stdout,
	}).WithRun(cfg.Algorithm.Name, cfg.Run.Seed)
	logger.Info("abcsim starting", "version", version)

	if metricsAddr == "" {
		metricsAddr = cfg.Reporting.MetricsAddr
	}
	var metrics *reporting.Metrics
	if metricsAddr != "" {
		metrics = reporting.NewMetrics()
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			logger.Info("serving metrics", "addr", metricsAddr)
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logger.Error("metrics server stopped", "error", err.Error())
			}
		}()
	}

	deps, observations, err := buildDemoDeps(cfg.Backend.Concurrency)
	if err != nil {
		return fmt.Errorf("failed to build model graph: %w", err)
	}

	base := algorithms.Config{
		N:                cfg.Algorithm.N,
		Steps:            cfg.Algorithm.Steps,
		EpsilonInit:      cfg.Algorithm.EpsilonInit,
		NSamplesPerParam: cfg.Algorithm.NSamplesPerParam,
		Epochs:           cfg.Algorithm.Epochs,
		FullOutput:       cfg.Algorithm.FullOutput,
		Seed:             cfg.Run.Seed,
		CovFactor:        cfg.Algorithm.CovFactor,
	}

	j, err := dispatch(cfg, base, deps, observations)
	if err != nil {
		return fmt.Errorf("sampler failed: %w", err)
	}

	if metrics != nil {
		metrics.StepsCompleted.WithLabelValues(cfg.Algorithm.Name).Add(float64(len(j.Entries)))
	}

	logger.Info("abcsim finished", "status", j.Status, "entries", len(j.Entries))
	fmt.Printf("status: %s\n", j.Status)
	if len(j.Entries) > 0 {
		final := j.Entries[len(j.Entries)-1]
		fmt.Printf("final population size: %d\n", len(final.Parameters))
	}
	return nil
}

func dispatch(cfg *config.Config, base algorithms.Config, deps algorithms.Deps, observations [][]float64) (*journal.Journal, error) {
	switch cfg.Algorithm.Name {
	case "rejection":
		return algorithms.Rejection(base, deps, observations)
	case "pmcabc":
		return algorithms.PMCABC(algorithms.PMCABCConfig{
			Config:            base,
			EpsilonPercentile: cfg.Algorithm.PMCABC.EpsilonPercentile,
		}, deps, observations)
	case "pmc":
		return algorithms.PMC(algorithms.PMCConfig{Config: base}, deps, models.GaussianLikelihood{Sigma: 0.5}, observations)
	case "sabc":
		return algorithms.SABC(algorithms.SABCConfig{
			Config:   base,
			Beta:     cfg.Algorithm.SABC.Beta,
			Delta:    cfg.Algorithm.SABC.Delta,
			V:        cfg.Algorithm.SABC.V,
			ArCutoff: cfg.Algorithm.SABC.ArCutoff,
			Resample: cfg.Algorithm.SABC.Resample,
		}, deps, observations)
	case "abcsubsim":
		return algorithms.ABCsubsim(algorithms.ABCsubsimConfig{
			Config:         base,
			ChainLength:    cfg.Algorithm.ABCsubsim.ChainLength,
			ApChangeCutoff: cfg.Algorithm.ABCsubsim.ApChangeCutoff,
		}, deps, observations)
	case "rsmcabc":
		return algorithms.RSMCABC(algorithms.RSMCABCConfig{
			Config:       base,
			Alpha:        cfg.Algorithm.RSMCABC.Alpha,
			RConstant:    cfg.Algorithm.RSMCABC.RConstant,
			EpsilonFinal: cfg.Algorithm.RSMCABC.EpsilonFinal,
		}, deps, observations)
	case "apmcabc":
		return algorithms.APMCABC(algorithms.APMCABCConfig{
			Config:           base,
			Alpha:            cfg.Algorithm.APMCABC.Alpha,
			AcceptanceCutoff: cfg.Algorithm.APMCABC.AcceptanceCutoff,
		}, deps, observations)
	case "smcabc":
		return algorithms.SMCABC(algorithms.SMCABCConfig{
			Config:       base,
			EssAlpha:     cfg.Algorithm.SMCABC.EssAlpha,
			ResampleFrac: cfg.Algorithm.SMCABC.ResampleFrac,
			EpsilonFinal: cfg.Algorithm.SMCABC.EpsilonFinal,
		}, deps, observations)
	default:
		return nil, fmt.Errorf("unknown algorithm %q", cfg.Algorithm.Name)
	}
}
