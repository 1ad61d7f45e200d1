package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	calocell "github.com/lorenzetti/calocell_go/pkg"
	"github.com/lorenzetti/calocell_go/pkg/monitoring"
	"github.com/spf13/cobra"
)

// Set by ldflags
var buildVersion = "dev"

var configuration calocell.Configuration

func main() {
	rootCmd := &cobra.Command{
		Use:   "calocell",
		Short: "Calorimeter cell reconstruction",
		Long: `calocell bins simulated hits per bunch crossing, reconstructs cell energy
and time with the optimal filter, calibrates the time of flight and
simulates the cross-talk between neighbor cells.`,
		Version:       buildVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(reconstructCmd())
	rootCmd.AddCommand(geometryCmd())

	if err := rootCmd.Execute(); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "calocell %s\n", buildVersion)
		},
	}
}

func reconstructCmd() *cobra.Command {
	var configFilename string
	cmd := &cobra.Command{
		Use:   "reconstruct",
		Short: "Reconstruct the cells of every event of the input file",
		Long: `Reconstruct the cells of every event of the input file.

Examples:
  # Reconstruct with the geometry of a local SQLite file
  calocell reconstruct --config config.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReconstruction(configFilename)
		},
	}
	cmd.Flags().StringVar(&configFilename, "config", "", "Configuration file path")
	cmd.MarkFlagRequired("config")
	return cmd
}

// setup reads the configuration and hands it and the logger to the library.
func setup(configFilename string) error {
	var err error
	configuration, err = LoadConfiguration(configFilename)
	if err != nil {
		return fmt.Errorf("error reading configuration file: %w", err)
	}
	calocell.SetConfiguration(configuration)
	calocell.SetLogger(logger)

	if configuration.Verbosity > 0 {
		message := fmt.Sprintf("Reading configuration file: %s", configFilename)
		logger.Info(message, "main")
		printConfiguration(configuration, logger)
	}
	return nil
}

func loadGeometry() (*calocell.Geometry, error) {
	dbConn, err := calocell.Connect(configuration)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	defer dbConn.Close()

	cells, err := calocell.LoadGeometry(dbConn, configuration.RunNumber)
	if err != nil {
		return nil, fmt.Errorf("error loading geometry: %w", err)
	}
	if len(cells) == 0 {
		return nil, fmt.Errorf("no cells found for run %d", configuration.RunNumber)
	}
	return calocell.NewGeometry(cells)
}

func runReconstruction(configFilename string) (err error) {
	start := time.Now()
	if err := setup(configFilename); err != nil {
		return err
	}

	geo, err := loadGeometry()
	if err != nil {
		return err
	}

	maker, err := calocell.NewCellMaker(geo, configuration)
	if err != nil {
		return err
	}
	var collector *monitoring.Collector
	if configuration.MonitoringDir != "" && maker.CrossTalk() != nil {
		collector = monitoring.NewCollector()
		maker.CrossTalk().SetObserver(collector)
	}

	file, err := os.Open(configuration.FileIn)
	if err != nil {
		return &calocell.ErrOpenFile{Filename: configuration.FileIn, Err: err}
	}
	defer file.Close()
	reader := calocell.NewEventReader(file, configuration.Skip, configuration.MaxEvents)

	var sink EventSink
	if configuration.WriteData {
		writer, werr := calocell.NewWriter(configuration.FileOut, configuration)
		if werr != nil {
			return werr
		}
		defer func() {
			err = errors.Join(err, writer.Close())
		}()
		sink = writer
	}

	summary := runWorkers(reader, maker, sink, configuration.NumWorkers)
	logger.Info(fmt.Sprintf("Events read: %d, written: %d, discarded: %d, bad lines: %d, cell errors: %d, missing inputs: %d",
		summary.Read, summary.Written, summary.Discarded, summary.BadLines, summary.CellErrors, summary.Missing), "main")

	if collector != nil {
		for _, s := range collector.Summary() {
			logger.Info(s.String(), "monitoring")
		}
		paths, err := collector.SavePlots(configuration.MonitoringDir)
		if err != nil {
			return fmt.Errorf("error saving monitoring plots: %w", err)
		}
		if configuration.Verbosity > 0 {
			logger.Info(fmt.Sprintf("%d monitoring plots saved in %s", len(paths), configuration.MonitoringDir), "main")
		}
	}

	logger.Info(fmt.Sprintf("Total time: %d ms", time.Since(start).Milliseconds()), "main")
	return nil
}
