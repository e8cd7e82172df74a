package commands

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flowguard/dce2smb/internal/logger"
	"github.com/flowguard/dce2smb/internal/policy"
	"github.com/flowguard/dce2smb/internal/smb1/rpc"
	"github.com/flowguard/dce2smb/pkg/config"
	"github.com/flowguard/dce2smb/pkg/metrics"
	_ "github.com/flowguard/dce2smb/pkg/metrics/prometheus"

	"github.com/flowguard/dce2smb/cmd/dce2watch/capture"
)

// runtime bundles everything watch and report need once configuration has
// been loaded and the logger and metrics registry have been set up.
type runtime struct {
	cfg     *config.Config
	target  policy.Target
	rpc     *rpc.Analyzer
	metrics metrics.TransMetrics
}

// loadRuntime loads configuration (honoring --config plus any flags bound
// by flagBinder), initializes the logger, and starts the metrics registry
// if enabled.
func loadRuntime(flagBinder func(v *viper.Viper)) (*runtime, error) {
	cfg, err := config.Load(GetConfigFile(), flagBinder)
	if err != nil {
		return nil, fmt.Errorf("commands: load config: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return nil, fmt.Errorf("commands: init logger: %w", err)
	}

	target, ok := policy.ParseTarget(cfg.Policy)
	if !ok {
		return nil, fmt.Errorf("commands: unknown policy %q", cfg.Policy)
	}

	var tm metrics.TransMetrics
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		tm = metrics.NewTransMetrics()
		serveMetrics(cfg.Metrics.BindAddr, cfg.Metrics.Path)
	}

	return &runtime{cfg: cfg, target: target, rpc: rpc.NewAnalyzer(), metrics: tm}, nil
}

// serveMetrics starts the Prometheus exposition endpoint in the background.
// A failure to bind is logged, not fatal: the analysis itself doesn't
// depend on metrics being servable.
func serveMetrics(addr, path string) {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Info("metrics endpoint listening", "addr", addr, "path", path)
}

// openSource opens the packet source cfg.Capture names: the file if one is
// set, otherwise the interface. config.Validate requires exactly one of the
// two, so both are never set here.
func openSource(cfg *config.Config) (*capture.Source, error) {
	if cfg.Capture.File != "" {
		return capture.OpenOffline(cfg.Capture.File)
	}
	return capture.OpenLive(cfg.Capture.Interface, int(cfg.Capture.Snaplen.Uint64()), cfg.Capture.Promiscuous)
}

// bindCaptureFlags registers the flags watch and report share for
// overriding capture.* config fields from the command line.
func bindCaptureFlags(cmd *cobra.Command) func(v *viper.Viper) {
	cmd.Flags().String("file", "", "pcap file to replay (overrides capture.file)")
	cmd.Flags().String("interface", "", "live interface to capture from (overrides capture.interface)")
	cmd.Flags().String("policy", "", "reassembly policy: windows or samba (overrides policy)")

	return func(v *viper.Viper) {
		_ = v.BindPFlag("capture.file", cmd.Flags().Lookup("file"))
		_ = v.BindPFlag("capture.interface", cmd.Flags().Lookup("interface"))
		_ = v.BindPFlag("policy", cmd.Flags().Lookup("policy"))
	}
}
