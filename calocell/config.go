package main

import (
	"encoding/json"
	"fmt"
	"os"

	calocell "github.com/lorenzetti/calocell_go/pkg"
)

func LoadConfiguration(filename string) (calocell.Configuration, error) {
	// Set default values
	config := calocell.DefaultConfiguration()

	data, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = json.Unmarshal(data, &config)
	if err != nil {
		return config, err
	}
	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func printConfiguration(config calocell.Configuration, logger calocell.Logger) {
	xt := config.CrossTalk
	logger.Info(fmt.Sprintf("File in: %s", config.FileIn), "config")
	logger.Info(fmt.Sprintf("File out: %s", config.FileOut), "config")
	logger.Info(fmt.Sprintf("Skip: %d", config.Skip), "config")
	logger.Info(fmt.Sprintf("Max events: %d", config.MaxEvents), "config")
	logger.Info(fmt.Sprintf("Verbosity: %d", config.Verbosity), "config")
	logger.Info(fmt.Sprintf("Number of workers: %d", config.NumWorkers), "config")
	logger.Info(fmt.Sprintf("Write data: %t", config.WriteData), "config")
	logger.Info(fmt.Sprintf("Compression level: %d", config.CompressionLevel), "config")
	logger.Info(fmt.Sprintf("DB driver: %s", config.DBDriver), "config")
	if config.DBDriver == "sqlite3" {
		logger.Info(fmt.Sprintf("DB file: %s", config.DBFile), "config")
	} else {
		logger.Info(fmt.Sprintf("Host: %s", config.Host), "config")
		logger.Info(fmt.Sprintf("DB name: %s", config.DBName), "config")
	}
	logger.Info(fmt.Sprintf("Run number: %d", config.RunNumber), "config")
	logger.Info(fmt.Sprintf("Timing policy: %v", config.TimingPolicy), "config")
	logger.Info(fmt.Sprintf("RoI window eta/phi: %g/%g", config.EtaWindow, config.PhiWindow), "config")
	logger.Info(fmt.Sprintf("Cross-talk: %t", config.DoCrossTalk), "config")
	if config.DoCrossTalk {
		logger.Info(fmt.Sprintf("Cross-talk samplings: %v", xt.Samplings), "config")
		logger.Info(fmt.Sprintf("Sigma noise cut: %g", xt.SigmaNoiseCut), "config")
		logger.Info(fmt.Sprintf("Amplitudes C/L/R (%%): %g/%g/%g", xt.AmpCapacitive, xt.AmpInductive, xt.AmpResistive), "config")
		logger.Info(fmt.Sprintf("Neighbor window scale: %g", xt.WindowScale), "config")
		logger.Info(fmt.Sprintf("Sample period: %g ns", xt.SamplePeriod), "config")
		logger.Info(fmt.Sprintf("Transfer function (%v): taud=%g taupa=%g td=%g Rf=%g C1=%g",
			xt.TransferMode, xt.Transfer.TauD, xt.Transfer.TauPA, xt.Transfer.TD, xt.Transfer.Rf, xt.Transfer.C1), "config")
	}
	logger.Info(fmt.Sprintf("Monitoring dir: %s", config.MonitoringDir), "config")
}
