package commands

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flowguard/dce2smb/internal/alerts"
	"github.com/flowguard/dce2smb/internal/logger"
	"github.com/flowguard/dce2smb/pkg/metrics"

	"github.com/flowguard/dce2smb/cmd/dce2watch/capture"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Replay a capture or watch an interface, logging alerts as they occur",
	Long: `watch reassembles the SMB1 traffic in a pcap file or on a live
interface and logs each alert as it's raised, the way a long-running
sensor process would.`,
	RunE: runWatch,
}

var bindWatchFlags func(v *viper.Viper)

func init() {
	bindWatchFlags = bindCaptureFlags(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime(bindWatchFlags)
	if err != nil {
		return err
	}

	src, err := openSource(rt.cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	var sink alerts.Sink = alerts.NewLoggerSink()
	if rt.cfg.Metrics.Enabled {
		sink = alerts.NewMetricsSink(sink, metrics.NewAlertMetrics())
	}

	logger.Info("watch starting", "policy", rt.target.String())

	return capture.Run(src, capture.Collaborators{
		Policy:  rt.target,
		RPC:     rt.rpc,
		Alert:   sink,
		Metrics: rt.metrics,
	})
}
