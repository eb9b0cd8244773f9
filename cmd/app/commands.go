package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"FinCast/internal/di"
	domsvc "FinCast/internal/domain/service"
	"FinCast/internal/repository"
	"FinCast/pkg/config"
)

var (
	configPath string

	forecastSymbol string
	forecastSeed   int64
	forecastEpochs int
	forecastOut    string

	rootCmd = &cobra.Command{
		Use:           "fincast",
		Short:         "LSTM daily stock price forecaster",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, job workers, ingestion and scheduler",
		RunE:  runServe,
	}

	forecastCmd = &cobra.Command{
		Use:   "forecast",
		Short: "Train on one symbol and print the forecast as JSON",
		RunE:  runForecast,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "config file path")

	forecastCmd.Flags().StringVar(&forecastSymbol, "symbol", "AAPL", "ticker to forecast")
	forecastCmd.Flags().Int64Var(&forecastSeed, "seed", 0, "random seed (0 uses forecast.seed)")
	forecastCmd.Flags().IntVar(&forecastEpochs, "epochs", 0, "training epochs (0 uses forecast.epochs)")
	forecastCmd.Flags().StringVar(&forecastOut, "out", "", "also write the forecast as parquet; - writes it to stdout instead of JSON")

	rootCmd.AddCommand(serveCmd, forecastCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}
	defer cleanup()

	return app.Run(cmd.Context())
}

func runForecast(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	// one-off runs keep state in process
	cfg.Cache.Backend = "memory"

	uc, cleanup, err := di.InitializeForecast(cfg)
	if err != nil {
		return fmt.Errorf("forecast initialization failed: %w", err)
	}
	defer cleanup()

	f, err := uc.Forecast(cmd.Context(), forecastSymbol, domsvc.RunOptions{Seed: forecastSeed, Epochs: forecastEpochs})
	if err != nil {
		return err
	}

	switch forecastOut {
	case "":
	case "-":
		return repository.EncodeForecastParquet(cmd.OutOrStdout(), f)
	default:
		if err := repository.WriteForecastParquet(forecastOut, f); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %d rows to %s\n", len(f.NextMonthPredictions), forecastOut)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(f)
}
