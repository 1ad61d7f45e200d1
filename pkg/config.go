package calocell

import "fmt"

type Configuration struct {
	FileIn           string          `json:"file_in"`
	FileOut          string          `json:"file_out"`
	Skip             int             `json:"skip"`
	MaxEvents        int             `json:"max_events"`
	Verbosity        int             `json:"verbosity"`
	NumWorkers       int             `json:"num_workers"`
	WriteData        bool            `json:"write_data"`
	CompressionLevel int             `json:"compression_level"`
	DBDriver         string          `json:"db_driver"`
	Host             string          `json:"host"`
	User             string          `json:"user"`
	Passwd           string          `json:"pass"`
	DBName           string          `json:"dbname"`
	DBFile           string          `json:"db_file"`
	RunNumber        int             `json:"run_number"`
	TimingPolicy     TimingPolicy    `json:"timing_policy"`
	DoCrossTalk      bool            `json:"do_crosstalk"`
	CrossTalk        CrossTalkConfig `json:"crosstalk"`
	EtaWindow        float64         `json:"eta_window"`
	PhiWindow        float64         `json:"phi_window"`
	MonitoringDir    string          `json:"monitoring_dir"`
}

var configuration Configuration

func GetConfiguration() Configuration {
	return configuration
}

func SetConfiguration(config Configuration) {
	configuration = config
}

// DefaultConfiguration holds the values used before a configuration file is read.
func DefaultConfiguration() Configuration {
	return Configuration{
		MaxEvents:        1000000000,
		NumWorkers:       1,
		WriteData:        true,
		CompressionLevel: 4,
		DBDriver:         "mysql",
		Host:             "localhost",
		User:             "caloreader",
		Passwd:           "readonly",
		DBName:           "LORENZETTI",
		TimingPolicy:     EarliestArrival,
		DoCrossTalk:      true,
		CrossTalk:        DefaultCrossTalkConfig(),
		EtaWindow:        0.6,
		PhiWindow:        0.6,
	}
}

func (c Configuration) Validate() error {
	if c.NumWorkers < 1 {
		return fmt.Errorf("num_workers must be positive, got %d", c.NumWorkers)
	}
	if c.Skip < 0 {
		return fmt.Errorf("skip must not be negative, got %d", c.Skip)
	}
	switch c.DBDriver {
	case "mysql", "sqlite3":
	default:
		return fmt.Errorf("unknown db_driver %q", c.DBDriver)
	}
	if c.DBDriver == "sqlite3" && c.DBFile == "" {
		return fmt.Errorf("db_file is required with the sqlite3 driver")
	}
	if c.EtaWindow <= 0 || c.PhiWindow <= 0 {
		return fmt.Errorf("region of interest windows must be positive")
	}
	if c.CompressionLevel < 0 || c.CompressionLevel > 9 {
		return fmt.Errorf("compression_level must be in [0, 9], got %d", c.CompressionLevel)
	}
	if c.DoCrossTalk {
		if err := c.CrossTalk.Validate(); err != nil {
			return err
		}
	}
	return nil
}
