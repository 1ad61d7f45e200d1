package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	calocell "github.com/lorenzetti/calocell_go/pkg"
	"github.com/spf13/cobra"
)

func geometryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "geometry",
		Short: "Inspect and import cell geometry",
	}
	cmd.AddCommand(geometryListCmd())
	cmd.AddCommand(geometryImportCmd())
	return cmd
}

func geometryListCmd() *cobra.Command {
	var configFilename string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Summarize the cells of the configured run per sampling",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := setup(configFilename); err != nil {
				return err
			}
			geo, err := loadGeometry()
			if err != nil {
				return err
			}
			return printGeometry(cmd.OutOrStdout(), geo)
		},
	}
	cmd.Flags().StringVar(&configFilename, "config", "", "Configuration file path")
	cmd.MarkFlagRequired("config")
	return cmd
}

func printGeometry(out io.Writer, geo *calocell.Geometry) error {
	counts := make(map[calocell.Sampling]int)
	for _, c := range geo.Cells() {
		counts[c.Sampling]++
	}
	samplings := make([]calocell.Sampling, 0, len(counts))
	for s := range counts {
		samplings = append(samplings, s)
	}
	sort.Slice(samplings, func(i, j int) bool { return samplings[i] < samplings[j] })

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SAMPLING\tCELLS")
	for _, s := range samplings {
		fmt.Fprintf(w, "%v\t%d\n", s, counts[s])
	}
	fmt.Fprintf(w, "TOTAL\t%d\n", geo.Len())
	return w.Flush()
}

// CellJSON is the import format of one cell.
type CellJSON struct {
	Hash       uint32    `json:"hash"`
	Eta        float64   `json:"eta"`
	Phi        float64   `json:"phi"`
	DeltaEta   float64   `json:"deta"`
	DeltaPhi   float64   `json:"dphi"`
	Sampling   int       `json:"sampling"`
	Detector   int       `json:"detector"`
	RMin       float64   `json:"rmin"`
	RMax       float64   `json:"rmax"`
	BcidStart  int       `json:"bcid_start"`
	BcidEnd    int       `json:"bcid_end"`
	BcDuration float64   `json:"bc_duration"`
	Noise      float64   `json:"noise"`
	OFCa       []float64 `json:"ofca"`
	OFCb       []float64 `json:"ofcb"`
}

func readCells(r io.Reader) ([]*calocell.Cell, error) {
	var entries []CellJSON
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("error decoding cells: %w", err)
	}
	cells := make([]*calocell.Cell, 0, len(entries))
	for _, e := range entries {
		cell, err := calocell.NewCell(calocell.Cell{
			Hash:       e.Hash,
			Eta:        e.Eta,
			Phi:        e.Phi,
			DeltaEta:   e.DeltaEta,
			DeltaPhi:   e.DeltaPhi,
			Sampling:   calocell.Sampling(e.Sampling),
			Detector:   calocell.Detector(e.Detector),
			RMin:       e.RMin,
			RMax:       e.RMax,
			BcidStart:  e.BcidStart,
			BcidEnd:    e.BcidEnd,
			BcDuration: e.BcDuration,
			Noise:      e.Noise,
			Weights:    calocell.WeightSet{Energy: e.OFCa, Time: e.OFCb},
		})
		if err != nil {
			return nil, err
		}
		cells = append(cells, cell)
	}
	return cells, nil
}

func geometryImportCmd() *cobra.Command {
	var (
		dbFile string
		minRun int
		maxRun int
	)
	cmd := &cobra.Command{
		Use:   "import <cells.json>",
		Short: "Import cells into a SQLite geometry file",
		Long: `Import a JSON array of cells into a SQLite geometry file.

Examples:
  calocell geometry import --db geometry.db --min-run 0 --max-run 999999 cells.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxRun < minRun {
				return fmt.Errorf("--max-run %d is lower than --min-run %d", maxRun, minRun)
			}
			file, err := os.Open(args[0])
			if err != nil {
				return &calocell.ErrOpenFile{Filename: args[0], Err: err}
			}
			defer file.Close()

			cells, err := readCells(file)
			if err != nil {
				return err
			}
			if _, err := calocell.NewGeometry(cells); err != nil {
				return err
			}

			db, err := calocell.ConnectToSQLite(dbFile)
			if err != nil {
				return fmt.Errorf("error opening %s: %w", dbFile, err)
			}
			defer db.Close()
			if err := calocell.CreateGeometryTable(db); err != nil {
				return err
			}
			if err := calocell.StoreGeometry(db, cells, minRun, maxRun); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d cells imported into %s for runs [%d, %d]\n", len(cells), dbFile, minRun, maxRun)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbFile, "db", "geometry.db", "SQLite geometry file")
	cmd.Flags().IntVar(&minRun, "min-run", 0, "First run the cells are valid for")
	cmd.Flags().IntVar(&maxRun, "max-run", 999999, "Last run the cells are valid for")
	return cmd
}
