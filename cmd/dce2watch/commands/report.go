package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flowguard/dce2smb/internal/alerts"
	"github.com/flowguard/dce2smb/internal/cliout"
	"github.com/flowguard/dce2smb/internal/logger"

	"github.com/flowguard/dce2smb/cmd/dce2watch/capture"
	"github.com/flowguard/dce2smb/cmd/dce2watch/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Replay a capture and print a summary of transactions and alerts",
	Long: `report runs the same reassembly engine as watch, but instead of
logging alerts as they're raised, it tabulates transaction dispositions
and alert counts and prints both tables once the capture is exhausted.`,
	RunE: runReport,
}

var bindReportFlags func(v *viper.Viper)

func init() {
	bindReportFlags = bindCaptureFlags(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime(bindReportFlags)
	if err != nil {
		return err
	}

	src, err := openSource(rt.cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	collector := report.NewCollector()
	var sink alerts.Sink = alerts.NewMetricsSink(nil, collector)

	logger.Info("report starting", "policy", rt.target.String())

	if err := capture.Run(src, capture.Collaborators{
		Policy:  rt.target,
		RPC:     rt.rpc,
		Alert:   sink,
		Metrics: collector,
	}); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Transaction dispositions:")
	cliout.PrintTable(out, collector.DispositionTable())
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Alerts (%d total):\n", collector.TotalAlerts())
	cliout.PrintTable(out, collector.AlertTable())

	return nil
}
