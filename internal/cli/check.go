package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/vietddude/pkgwatch/internal/control"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one download and verify cycle for every target and exit",
	Run:   runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	app, err := control.NewApp(cfg, control.Options{Registry: prometheus.NewRegistry()})
	if err != nil {
		slog.Error("Failed to initialize pkgwatch", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	outcomes, err := app.Monitor().RunAll(context.Background())
	if err != nil {
		slog.Error("Check aborted", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TARGET\tRESULT\tLATENCY\tDETAIL")

	failed := 0
	for _, o := range outcomes {
		detail := ""
		if o.Err != nil {
			detail = o.Err.Error()
			failed++
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", o.Target, o.Reason, o.Latency.Round(time.Millisecond), detail)
	}
	_ = w.Flush()

	if failed > 0 {
		os.Exit(1)
	}
}
