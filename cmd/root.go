package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dbload/internal/cli"
	"dbload/internal/client"
	"dbload/internal/db"
	"dbload/internal/discover"
	"dbload/internal/metrics"
	"dbload/internal/profile"
	"dbload/internal/runner"
	"dbload/internal/stats"
	"dbload/internal/storage"
)

var (
	cfgFile string
	verbose bool

	// Connection flags
	driver         string
	host           string
	port           int
	user           string
	password       string
	database       string
	useTLS         bool
	tlsSkipVerify  bool
	tlsServerName  string
	nativeDialer   bool
	connectTimeout time.Duration

	// Profile flags
	profileName string
	connections int
	opsPerSec   int
	dataSizeKB  int
	thinkTime   time.Duration
	duration    time.Duration

	// Run flags
	testType       string
	readRatio      float64
	batches        int
	batchSize      int
	compareOps     int
	noPrepared     bool
	outFile        string
	minSuccessRate float64
	metricsAddr    string
	noHistory      bool
)

var rootCmd = &cobra.Command{
	Use:   "dbload",
	Short: "dbload - Database Load Testing Tool",
	Long: `
dbload drives configurable read/write workloads against PostgreSQL,
MySQL or SQLite through a pool of dedicated connections, and reports
latency and throughput statistics per run.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetLevel(log.DebugLevel)
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dbload.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	pf.StringVar(&driver, "driver", db.DriverPostgres, "Database driver (postgres, mysql, sqlite3)")
	pf.StringVar(&host, "host", "localhost", "Database host")
	pf.IntVar(&port, "port", 0, "Database port (0 uses the driver default)")
	pf.StringVar(&user, "user", "", "Database user")
	pf.StringVar(&password, "password", "", "Database password")
	pf.StringVar(&database, "database", "", "Database name (file path for sqlite3)")
	pf.BoolVar(&useTLS, "tls", false, "Connect over TLS")
	pf.BoolVar(&tlsSkipVerify, "tls-skip-verify", false, "Skip TLS certificate verification")
	pf.StringVar(&tlsServerName, "tls-server-name", "", "Override the TLS server name")
	pf.BoolVar(&nativeDialer, "native-dialer", false, "Use the keep-alive tuned dialer (mysql only)")
	pf.DurationVar(&connectTimeout, "connect-timeout", 10*time.Second, "Connection timeout")

	viper.BindPFlag("driver", pf.Lookup("driver"))
	viper.BindPFlag("host", pf.Lookup("host"))
	viper.BindPFlag("port", pf.Lookup("port"))
	viper.BindPFlag("user", pf.Lookup("user"))
	viper.BindPFlag("password", pf.Lookup("password"))
	viper.BindPFlag("database", pf.Lookup("database"))
	viper.BindPFlag("use_tls", pf.Lookup("tls"))
	viper.BindPFlag("tls_skip_verify", pf.Lookup("tls-skip-verify"))
	viper.BindPFlag("tls_server_name", pf.Lookup("tls-server-name"))
	viper.BindPFlag("native_dialer", pf.Lookup("native-dialer"))
	viper.BindPFlag("connect_timeout", pf.Lookup("connect-timeout"))

	rootCmd.AddCommand(runCmd, setupCmd, populateCmd, queryPerfCmd, queriesCmd, pingCmd, discoverCmd, historyCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".dbload")
		}
	}
	viper.SetEnvPrefix("DBLOAD")
	viper.AutomaticEnv()
	viper.ReadInConfig()
}

func loadConfig() (db.Config, error) {
	var cfg db.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return db.Config{}, errors.Wrap(err, "loading connection config")
	}
	return cfg, cfg.Validate()
}

// loadProfile resolves the named preset, then layers on whichever shape
// flags were set explicitly.
func loadProfile(cmd *cobra.Command) profile.Profile {
	var p profile.Profile
	switch profileName {
	case "low":
		p = profile.LowLoad()
	case "high":
		p = profile.HighLoad()
	default:
		p = profile.Custom(profileName)
	}

	f := cmd.Flags()
	if f.Changed("connections") {
		p.Connections = connections
	}
	if f.Changed("ops") {
		p.OpsPerSecond = opsPerSec
	}
	if f.Changed("data-size") {
		p.DataSizeKB = dataSizeKB
	}
	if f.Changed("think-time") {
		p.ThinkTime = thinkTime
	}
	if f.Changed("duration") {
		p.Duration = duration
	}
	return p
}

func addProfileFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&profileName, "profile", "custom", "Load profile (low, high, or a custom name)")
	f.IntVarP(&connections, "connections", "c", 10, "Concurrent connections")
	f.IntVarP(&opsPerSec, "ops", "r", 50, "Target operations per second")
	f.IntVar(&dataSizeKB, "data-size", 100, "Payload size in KB")
	f.DurationVar(&thinkTime, "think-time", 50*time.Millisecond, "Pause between operations per connection")
	f.DurationVarP(&duration, "duration", "d", 120*time.Second, "Test duration")
}

// signalContext is cancelled on Ctrl-C so workers drain cooperatively.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// --- run ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a load test scenario",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		p := loadProfile(cmd)

		ctx, cancel := signalContext()
		defer cancel()

		provider := db.NewProvider(cfg)
		defer provider.Close()

		live := stats.New()
		if metricsAddr != "" {
			if err := serveMetrics(live, metricsAddr); err != nil {
				return err
			}
		}

		updates := make(runner.UpdateChan, 100)
		c := client.New(provider, p,
			client.WithUpdates(updates),
			client.WithLiveStats(live),
			client.WithPreparedStatements(!noPrepared),
		)

		cli.PrintHeader(cfg, p, testType)

		if testType == "compare" {
			return runCompare(ctx, c, p)
		}

		progressTotal := p.TotalOperations()
		if testType == "all" {
			progressTotal *= 3
		}

		progressCtx, stopProgress := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			cli.WatchProgress(progressCtx, updates, progressTotal)
		}()

		if testType == "all" {
			scenarios, err := c.RunAllTests(ctx, readRatio)
			stopProgress()
			<-done
			if err != nil {
				return err
			}
			return reportSuite(scenarios, p)
		}

		results, err := runScenario(ctx, c)
		stopProgress()
		<-done
		if err != nil {
			return err
		}

		summary, err := results.Summary()
		if err != nil {
			return err
		}
		cli.PrintSummary(summary)

		saveHistory(testType, p, summary)

		if outFile != "" {
			if err := cli.ExportJSON(outFile, summary); err != nil {
				return errors.Wrap(err, "exporting results")
			}
			log.WithField("file", outFile).Info("results exported")
		}

		if summary.SuccessRate < minSuccessRate {
			return errors.Errorf("success rate %.2f%% below required %.2f%%",
				summary.SuccessRate, minSuccessRate)
		}
		return nil
	},
}

// reportSuite renders, persists and gates a full pass's scenario results.
func reportSuite(scenarios []client.ScenarioResult, p profile.Profile) error {
	entries := make([]cli.SuiteEntry, 0, len(scenarios))
	lowest := 100.0
	for _, s := range scenarios {
		summary, err := s.Results.Summary()
		if err != nil {
			return errors.Wrapf(err, "%s scenario summary", s.Scenario)
		}
		entries = append(entries, cli.SuiteEntry{Scenario: s.Scenario, Summary: summary})
		saveHistory(s.Scenario, p, summary)
		if summary.SuccessRate < lowest {
			lowest = summary.SuccessRate
		}
	}
	cli.PrintSuiteSummary(entries)

	if outFile != "" {
		doc := make(map[string]metrics.Summary, len(entries))
		for _, e := range entries {
			doc[e.Scenario] = e.Summary
		}
		if err := cli.ExportJSON(outFile, doc); err != nil {
			return errors.Wrap(err, "exporting results")
		}
	}

	if lowest < minSuccessRate {
		return errors.Errorf("success rate %.2f%% below required %.2f%%", lowest, minSuccessRate)
	}
	return nil
}

func runScenario(ctx context.Context, c *client.Client) (*metrics.Results, error) {
	switch testType {
	case "write":
		return c.RunWriteTest(ctx)
	case "read":
		return c.RunReadTest(ctx)
	case "mixed":
		return c.RunMixedTest(ctx, readRatio)
	case "batch":
		return c.RunBatchTest(ctx, batches, batchSize)
	default:
		return nil, errors.Errorf("unknown test type %q", testType)
	}
}

func runCompare(ctx context.Context, c *client.Client, p profile.Profile) error {
	out, err := c.ComparePreparedVsDirect(ctx, compareOps, p.DataSizeKB)
	if err != nil {
		return err
	}

	prepared, err := out["prepared"].Summary()
	if err != nil {
		return err
	}
	direct, err := out["direct"].Summary()
	if err != nil {
		return err
	}
	cli.PrintComparison(prepared, direct)

	saveHistory("compare_prepared", p, prepared)
	saveHistory("compare_direct", p, direct)

	if outFile != "" {
		doc := map[string]metrics.Summary{"prepared": prepared, "direct": direct}
		if err := cli.ExportJSON(outFile, doc); err != nil {
			return errors.Wrap(err, "exporting results")
		}
	}
	return nil
}

func serveMetrics(live *stats.Stats, addr string) error {
	reg := prometheus.NewRegistry()
	if err := live.EnablePrometheus(reg); err != nil {
		return errors.Wrap(err, "registering metrics")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		log.WithField("addr", addr).Info("serving metrics")
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.WithError(err).Error("metrics server stopped")
		}
	}()
	return nil
}

// saveHistory persists a run summary, best effort: a broken history store
// never fails a finished test.
func saveHistory(scenario string, p profile.Profile, s metrics.Summary) {
	if noHistory {
		return
	}
	path, err := storage.DefaultPath()
	if err != nil {
		log.WithError(err).Warn("history disabled, no home directory")
		return
	}
	store, err := storage.NewStore(path)
	if err != nil {
		log.WithError(err).Warn("history disabled, store unavailable")
		return
	}
	defer store.Close()

	item := storage.NewHistoryItem(scenario, p, s)
	if err := store.Save(item); err != nil {
		log.WithError(err).Warn("failed to save run history")
		return
	}
	log.WithField("id", item.ID).Info("run saved to history")
}

// --- setup ---

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Drop and recreate the test tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		provider := db.NewProvider(cfg)
		defer provider.Close()

		return client.New(provider, profile.Custom("setup")).SetupTables(ctx)
	},
}

// --- populate ---

var populateCmd = &cobra.Command{
	Use:   "populate",
	Short: "Bulk-load reference rows into the test tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rows, _ := cmd.Flags().GetInt("rows")
		size, _ := cmd.Flags().GetInt("batch-size")

		ctx, cancel := signalContext()
		defer cancel()

		provider := db.NewProvider(cfg)
		defer provider.Close()

		st, err := client.New(provider, profile.Custom("populate")).Populate(ctx, rows, size)
		if err != nil {
			return err
		}

		fmt.Printf("Inserted %d rows in %s (%.0f rows/sec, %d batches of %d)\n",
			st.RowsInserted, st.Elapsed.Round(time.Millisecond),
			st.RowsPerSecond, st.Batches, st.BatchSize)
		return nil
	},
}

// --- query-perf ---

var queryPerfCmd = &cobra.Command{
	Use:   "query-perf <query>",
	Short: "Measure one query's latency over repeated executions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		iterations, _ := cmd.Flags().GetInt("iterations")

		ctx, cancel := signalContext()
		defer cancel()

		provider := db.NewProvider(cfg)
		defer provider.Close()

		st, err := client.New(provider, profile.Custom("query-perf")).
			QueryPerformance(ctx, args[0], iterations)
		if err != nil {
			return err
		}

		fmt.Printf("Iterations : %d (%d failed)\n", st.Iterations, st.FailedIterations)
		fmt.Printf("Avg rows   : %.1f\n", st.AvgRowsReturned)
		fmt.Printf("Latency ms : avg %.2f | min %.2f | max %.2f | total %.2f\n",
			st.AvgTimeMs, st.MinTimeMs, st.MaxTimeMs, st.TotalTimeMs)

		if outFile != "" {
			return cli.ExportJSON(outFile, st)
		}
		return nil
	},
}

// --- queries ---

var queriesCmd = &cobra.Command{
	Use:   "queries",
	Short: "Run the query-pattern battery against the reference table",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		queryType, _ := cmd.Flags().GetString("query-type")

		ctx, cancel := signalContext()
		defer cancel()

		provider := db.NewProvider(cfg)
		defer provider.Close()

		results, err := client.New(provider, profile.Custom("queries")).
			ComprehensiveQueries(ctx, queryType)
		if err != nil {
			return err
		}

		names := make([]string, 0, len(results))
		for name := range results {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			r := results[name]
			if r.Success {
				fmt.Printf("%-22s %6d rows  %8.2f ms\n", name, r.Rows, r.ElapsedMs)
			} else {
				fmt.Printf("%-22s FAILED after %.2f ms: %s\n", name, r.ElapsedMs, r.Error)
			}
		}

		if outFile != "" {
			return cli.ExportJSON(outFile, results)
		}
		return nil
	},
}

// --- ping ---

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check database connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		provider := db.NewProvider(cfg)
		defer provider.Close()

		start := time.Now()
		if err := provider.Ping(ctx); err != nil {
			return errors.Wrapf(err, "%s is not responding", cfg.Addr())
		}
		fmt.Printf("%s (%s) is up, round trip %s\n",
			cfg.Addr(), cfg.Driver, time.Since(start).Round(time.Millisecond))
		return nil
	},
}

// --- discover ---

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Probe a host for live databases",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		candidates, _ := cmd.Flags().GetStringSlice("candidates")

		ctx, cancel := signalContext()
		defer cancel()

		found, err := discover.Services(ctx, cfg, candidates)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			fmt.Println("No databases discovered")
			return nil
		}

		fmt.Printf("Discovered %d database(s) on %s:\n", len(found), cfg.Addr())
		for _, name := range found {
			fmt.Printf("  - %s\n", name)
		}
		return nil
	},
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List saved runs, or show one run as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := storage.DefaultPath()
		if err != nil {
			return err
		}
		store, err := storage.NewStore(path)
		if err != nil {
			return err
		}
		defer store.Close()

		if len(args) == 1 {
			item, err := store.Get(args[0])
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(item, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		items := store.List()
		if len(items) == 0 {
			fmt.Println("No saved runs")
			return nil
		}
		for _, item := range items {
			fmt.Printf("%s  %-16s %-12s ops=%-6d success=%.1f%%  %s\n",
				item.Timestamp.Format("2006-01-02 15:04:05"),
				item.Scenario, item.Profile.Name,
				item.Summary.TotalOperations, item.Summary.SuccessRate,
				item.ID)
		}
		return nil
	},
}

func init() {
	addProfileFlags(runCmd)
	f := runCmd.Flags()
	f.StringVarP(&testType, "test-type", "t", "write", "Scenario: write, read, mixed, batch, compare or all")
	f.Float64Var(&readRatio, "read-ratio", 0.7, "Read probability for mixed tests")
	f.IntVar(&batches, "batches", 10, "Batch count for batch tests")
	f.IntVar(&batchSize, "batch-size", 100, "Rows per batch for batch tests")
	f.IntVar(&compareOps, "compare-ops", 100, "Operations per variant for compare tests")
	f.BoolVar(&noPrepared, "no-prepared", false, "Execute statements as direct text")
	f.StringVarP(&outFile, "out", "o", "", "Write the summary to a JSON file")
	f.Float64Var(&minSuccessRate, "min-success-rate", 0, "Fail the run below this success rate")
	f.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")
	f.BoolVar(&noHistory, "no-history", false, "Skip saving the run to history")

	populateCmd.Flags().Int("rows", 1000, "Rows to insert")
	populateCmd.Flags().Int("batch-size", 100, "Rows per transaction")

	queryPerfCmd.Flags().Int("iterations", 100, "Times to execute the query")
	queryPerfCmd.Flags().StringVarP(&outFile, "out", "o", "", "Write the stats to a JSON file")

	queriesCmd.Flags().String("query-type", "all", "Pattern group: all, select_all, where_indexed, where_non_indexed, aggregate, group_by, order_by or complex")
	queriesCmd.Flags().StringVarP(&outFile, "out", "o", "", "Write the results to a JSON file")

	discoverCmd.Flags().StringSlice("candidates", nil, "Database names to probe (defaults per driver)")
}
