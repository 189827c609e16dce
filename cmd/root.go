package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/BegleyBrothers/swanling/internal/banner"
	"github.com/BegleyBrothers/swanling/internal/cadence"
	"github.com/BegleyBrothers/swanling/internal/client"
	"github.com/BegleyBrothers/swanling/internal/runner"
	"github.com/BegleyBrothers/swanling/internal/storage"
	"github.com/BegleyBrothers/swanling/internal/user"
)

var (
	cfgFile string

	// CLI flags
	host          string
	users         int
	hatchRate     float64
	runTime       time.Duration
	timeout       time.Duration
	coMitigation  string
	requestLog    string
	swanlingLog   string
	verbose       bool
	reportFile    string
	paths         []string
	waitMin       time.Duration
	waitMax       time.Duration
	telemetryAddr string
	noHistory     bool
)

var rootCmd = &cobra.Command{
	Use:   "swanling",
	Short: "Swanling - HTTP load testing with coordinated omission mitigation",
	Long: `
Swanling launches virtual users against a target host, each looping over a
task sequence, and reports raw and Coordinated-Omission-adjusted latency
statistics. When --co-mitigation is enabled, abnormally slow requests are
back-filled with the synthetic samples a non-blocked user would have seen.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAttack(cmd.Context())
	},
}

// Execute runs the root command. Configuration errors exit nonzero.
func Execute() {
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Println(banner.GetString())
		cmd.Usage()
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(targetCmd)
	rootCmd.AddCommand(historyCmd)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.swanling.yaml)")

	rootCmd.Flags().StringVar(&host, "host", "", "Target base URL")
	rootCmd.Flags().IntVarP(&users, "users", "u", 1, "Number of virtual users")
	rootCmd.Flags().Float64VarP(&hatchRate, "hatch-rate", "r", 1, "Users launched per second during ramp-up")
	rootCmd.Flags().DurationVarP(&runTime, "run-time", "t", 0, "Test duration (0 runs until interrupt)")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "Per-request timeout")
	rootCmd.Flags().StringVar(&coMitigation, "co-mitigation", "disabled", "Coordinated omission cadence policy: disabled, average, minimum or maximum")
	rootCmd.Flags().StringVar(&requestLog, "request-log", "", "Write every sample as one line of JSON to this file")
	rootCmd.Flags().StringVar(&swanlingLog, "swanling-log", "", "Write textual INFO/WARN messages to this file")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Copy INFO messages to standard error")
	rootCmd.Flags().StringVar(&reportFile, "report-file", "", "Write an HTML report to this file at end of run")
	rootCmd.Flags().StringSliceVarP(&paths, "path", "p", []string{"/"}, "Task definition name=/path (repeatable); a bare /path uses the path as name")
	rootCmd.Flags().DurationVar(&waitMin, "wait-time-min", 0, "Minimum sleep between tasks")
	rootCmd.Flags().DurationVar(&waitMax, "wait-time-max", 0, "Maximum sleep between tasks")
	rootCmd.Flags().StringVar(&telemetryAddr, "telemetry-addr", "", "Serve Prometheus metrics on this address")
	rootCmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record this run in the history database")

	viper.BindPFlag("host", rootCmd.Flags().Lookup("host"))
	viper.BindPFlag("users", rootCmd.Flags().Lookup("users"))
	viper.BindPFlag("hatch-rate", rootCmd.Flags().Lookup("hatch-rate"))
	viper.BindPFlag("co-mitigation", rootCmd.Flags().Lookup("co-mitigation"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".swanling")
		}
	}
	viper.SetEnvPrefix("swanling")
	viper.AutomaticEnv()
	viper.ReadInConfig()
}

func runAttack(ctx context.Context) error {
	policy, err := cadence.ParsePolicy(viper.GetString("co-mitigation"))
	if err != nil {
		return err
	}

	historyPath := ""
	if !noHistory {
		if p, err := storage.DefaultPath(); err == nil {
			historyPath = p
		}
	}

	cfg := runner.Config{
		Host:          viper.GetString("host"),
		Users:         viper.GetInt("users"),
		HatchRate:     viper.GetFloat64("hatch-rate"),
		RunTime:       runTime,
		Timeout:       timeout,
		Mitigation:    policy,
		RequestLog:    requestLog,
		SwanlingLog:   swanlingLog,
		Verbose:       verbose,
		ReportFile:    reportFile,
		WaitMin:       waitMin,
		WaitMax:       waitMax,
		TelemetryAddr: telemetryAddr,
		HistoryPath:   historyPath,
	}

	r, err := runner.New(cfg, user.Sequence{Tasks: tasksFromPaths(paths)})
	if err != nil {
		return err
	}

	fmt.Println(banner.GetString())
	_, err = r.Run(ctx)
	return err
}

// tasksFromPaths turns --path flags into the built-in GET task sequence.
func tasksFromPaths(specs []string) []user.Task {
	tasks := make([]user.Task, 0, len(specs))
	for _, raw := range specs {
		name, path := raw, raw
		if i := strings.Index(raw, "="); i > 0 {
			name, path = raw[:i], raw[i+1:]
		}
		taskName, taskPath := name, path
		tasks = append(tasks, user.Task{
			Name: taskName,
			Run: func(ctx context.Context, s *client.Session) error {
				_, err := s.Get(ctx, taskName, taskPath)
				return err
			},
		})
	}
	return tasks
}
