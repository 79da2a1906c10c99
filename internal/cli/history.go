package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/devstress/devstress/internal/history"
)

var historyDirFlag string

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.NewStore(historyDirFlag)
		if err != nil {
			return err
		}
		summaries, err := store.List()
		if err != nil {
			return err
		}
		if len(summaries) == 0 {
			fmt.Println("No recorded runs.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STARTED\tRUN\tURL\tREQUESTS\tSUCCESS\tRPS\tP95(ms)")
		for _, s := range summaries {
			fmt.Fprintf(w, "%s\t%.8s\t%s\t%d\t%.1f%%\t%.1f\t%.0f\n",
				s.StartTime.Format("2006-01-02 15:04:05"), s.RunID, s.URL,
				s.TotalRequests, s.SuccessRate, s.RequestsPerSecond, s.LatencyMs.P95)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyDirFlag, "dir", ".devstress", "history directory")
}
