package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BegleyBrothers/swanling/internal/storage"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := storage.DefaultPath()
		if err != nil {
			return err
		}
		store, err := storage.Open(path)
		if err != nil {
			return err
		}
		defer store.Close()

		recs, err := store.List()
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Println("no recorded runs")
			return nil
		}

		fmt.Printf("%-36s  %-19s  %-24s  %5s  %-8s  %9s  %9s  %8s\n",
			"ID", "Started", "Host", "Users", "Policy", "Requests", "Failures", "P99 (ms)")
		for _, rec := range recs {
			fmt.Printf("%-36s  %-19s  %-24s  %5d  %-8s  %9d  %9d  %8d\n",
				rec.ID,
				rec.Started.Format("2006-01-02 15:04:05"),
				rec.Host,
				rec.Users,
				rec.Mitigation,
				rec.RawCount,
				rec.Failures,
				rec.RawP99Ms,
			)
		}
		return nil
	},
}
