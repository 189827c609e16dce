package cmd

import (
	"github.com/spf13/cobra"

	"github.com/BegleyBrothers/swanling/internal/dummy"
)

// targetCmd runs the built-in test server so the tool can be tried without
// an external target.
var targetCmd = &cobra.Command{
	Use:   "target",
	Short: "Run the built-in latency-profile target server",
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetInt("port")
		dummy.Start(dummy.ServerConfig{Port: port})
		<-cmd.Context().Done()
	},
}

func init() {
	targetCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
}
