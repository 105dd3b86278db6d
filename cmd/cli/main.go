package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"agriprice/adapters/excel"
	"agriprice/domain/dataset"
	"agriprice/domain/model"
	"agriprice/internal"
	"agriprice/internal/config"
	"agriprice/internal/container"
	"agriprice/internal/engine"
	"agriprice/internal/insights"
	"agriprice/internal/migration"
	"agriprice/internal/synthesis"
	"agriprice/ports"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

// dataFlags select the observations a command works on
type dataFlags struct {
	file     string
	start    int
	end      int
	samples  int
	rate     float64
	seed     int64
	logLevel string
}

func (f *dataFlags) register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&f.file, "file", "", "CSV or XLSX observation file (default: synthesize)")
	cmd.PersistentFlags().IntVar(&f.start, "start-year", 2005, "First synthesized year")
	cmd.PersistentFlags().IntVar(&f.end, "end-year", 2025, "Last synthesized year")
	cmd.PersistentFlags().IntVar(&f.samples, "samples", 2, "Samples per (year, month, city, variety)")
	cmd.PersistentFlags().Float64Var(&f.rate, "sampling-rate", 1.0, "Fraction of combinations to keep, in (0, 1]")
	cmd.PersistentFlags().Int64Var(&f.seed, "seed", 42, "Random seed; 0 seeds from the clock")
	cmd.PersistentFlags().StringVar(&f.logLevel, "log-level", "warn", "ERROR, WARN, INFO, DEBUG or TRACE")
}

func (f *dataFlags) logger() *internal.Logger {
	return internal.NewLoggerTo(os.Stderr, internal.ParseLogLevel(f.logLevel))
}

func (f *dataFlags) synthesisConfig() synthesis.GeneratorConfig {
	return container.SynthesisConfig(config.SynthesisConfig{
		StartYear:             f.start,
		EndYear:               f.end,
		SamplesPerCombination: f.samples,
		SamplingRate:          f.rate,
		Seed:                  f.seed,
	})
}

func (f *dataFlags) source(logger *internal.Logger) ports.ObservationSource {
	if f.file != "" {
		return excel.NewDataReader(f.file, dataset.DefaultBounds(), logger)
	}
	return synthesis.NewCachedSource(synthesis.NewGenerator(f.synthesisConfig()), logger)
}

// trainedEngine builds an engine over the selected observations and trains it
func (f *dataFlags) trainedEngine(ctx context.Context) (*engine.Engine, error) {
	logger := f.logger()
	eng, err := engine.New(engine.DefaultConfig(), f.source(logger), logger)
	if err != nil {
		return nil, err
	}
	if _, err := eng.Train(ctx); err != nil {
		return nil, err
	}
	return eng, nil
}

func main() {
	godotenv.Load()

	flags := &dataFlags{}
	rootCmd := &cobra.Command{
		Use:          "agriprice",
		Short:        "Chilli market price dataset and model tooling",
		SilenceUsage: true,
	}
	flags.register(rootCmd)

	rootCmd.AddCommand(
		newGenerateCmd(flags),
		newTrainCmd(flags),
		newPredictCmd(flags),
		newReportCmd(flags),
		newMigrateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newGenerateCmd(flags *dataFlags) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Synthesize an observation dataset and write it as CSV or XLSX",
		Long: `Synthesize the observation dataset and write it to a file. The format
follows the file extension.

Example: agriprice generate --out data/observations.csv --start-year 2015 --seed 7`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := excel.ParseFormat(strings.TrimPrefix(strings.ToLower(filepath.Ext(out)), "."))
			if err != nil {
				return err
			}

			start := time.Now()
			observations, stats := synthesis.NewGenerator(flags.synthesisConfig()).Generate()

			file, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}
			defer file.Close()
			if err := excel.Write(file, format, observations); err != nil {
				return err
			}

			fmt.Printf("Wrote %d observations to %s in %v\n", stats.TotalSamples, out, time.Since(start).Round(time.Millisecond))
			fmt.Printf("  Years: %d-%d  Cities: %d  Varieties: %d\n",
				first(stats.Years), last(stats.Years), len(stats.Cities), len(stats.Varieties))
			fmt.Printf("  Price range: ₹%.0f - ₹%.0f (avg ₹%.0f)\n",
				stats.PriceRange.Min, stats.PriceRange.Max, stats.PriceRange.Avg)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "observations.csv", "Output file (.csv or .xlsx)")
	return cmd
}

func newTrainCmd(flags *dataFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train every model variant and print its metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := flags.trainedEngine(cmd.Context())
			if err != nil {
				return err
			}
			metrics := eng.Metrics()
			if asJSON {
				return printJSON(metrics)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tACCURACY\tMAE\tRMSE\tR2\t")
			for _, m := range metrics {
				r2 := "undefined"
				if m.R2Defined {
					r2 = fmt.Sprintf("%.4f", m.R2Score)
				}
				marker := ""
				if m.Name == eng.ActiveModel() {
					marker = " *"
				}
				fmt.Fprintf(w, "%s%s\t%.2f%%\t%.2f\t%.2f\t%s\t\n", m.Name, marker, m.Accuracy, m.MAE, m.RMSE, r2)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print metrics as JSON")
	return cmd
}

func newPredictCmd(flags *dataFlags) *cobra.Command {
	var (
		input                           model.PredictionInput
		frequency                       string
		rainfall, arrivals, temperature float64
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Train, then predict the price for one market cell",
		Long: `Train on the selected observations and predict a price.

Example: agriprice predict --year 2026 --month 3 --city Guntur --variety Teja --frequency Weekly --rainfall 12`,
		RunE: func(cmd *cobra.Command, args []string) error {
			input.Frequency = model.Frequency(frequency)
			if !input.Frequency.Valid() {
				return fmt.Errorf("unsupported frequency %q (Weekly, Monthly or Yearly)", frequency)
			}
			if cmd.Flags().Changed("rainfall") {
				input.Rainfall = model.Float(rainfall)
			}
			if cmd.Flags().Changed("arrivals") {
				input.Arrivals = model.Float(arrivals)
			}
			if cmd.Flags().Changed("temperature") {
				input.Temperature = model.Float(temperature)
			}

			eng, err := flags.trainedEngine(cmd.Context())
			if err != nil {
				return err
			}
			result, err := eng.Predict(input)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}

	cmd.Flags().IntVar(&input.Year, "year", time.Now().Year(), "Year to predict")
	cmd.Flags().IntVar(&input.Month, "month", int(time.Now().Month()), "Month to predict (1-12)")
	cmd.Flags().StringVar(&input.City, "city", "Bangalore", "Market city")
	cmd.Flags().StringVar(&input.Variety, "variety", "Guntur", "Chilli variety")
	cmd.Flags().StringVar(&frequency, "frequency", string(model.FrequencyMonthly), "Weekly, Monthly or Yearly")
	cmd.Flags().Float64Var(&rainfall, "rainfall", 0, "Expected rainfall in mm (default: historical average)")
	cmd.Flags().Float64Var(&arrivals, "arrivals", 0, "Expected arrivals in quintals (default: historical average)")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "Expected temperature in °C (default: historical average)")
	return cmd
}

func newReportCmd(flags *dataFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Train and print the markdown model performance report",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := flags.trainedEngine(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := eng.DatasetStats()
			if err != nil {
				return err
			}
			fmt.Print(insights.ModelReport(insights.ModelSummary{
				GeneratedAt: time.Now(),
				ActiveModel: eng.ActiveModel(),
				Version:     eng.Version(),
				Dataset:     stats,
				Metrics:     eng.Metrics(),
			}))
			return nil
		},
	}
}

func newMigrateCmd() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the PostgreSQL schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				return fmt.Errorf("--database-url or DATABASE_URL is required")
			}
			db, err := sqlx.ConnectContext(cmd.Context(), "postgres", databaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			runner := migration.NewRunner()
			if err := runner.Run(cmd.Context(), db); err != nil {
				return err
			}
			fmt.Printf("Schema at version %s\n", runner.Version())
			return nil
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection URL")
	return cmd
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func first(values []int) int {
	if len(values) == 0 {
		return 0
	}
	return values[0]
}

func last(values []int) int {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}
