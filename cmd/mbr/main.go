package main

import (
	"fmt"
	"io"
	"os"

	"github.com/ntthung/mbr"
	"github.com/ntthung/mbr/cvfolds"
	"github.com/ntthung/mbr/internal/config"
	"github.com/ntthung/mbr/internal/dataio"
	"github.com/ntthung/mbr/logger"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
)

var rootCmd = &cobra.Command{
	Use:           "mbr",
	Short:         "mbr reconstructs seasonal and annual streamflow with mass balance",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.EnableDebug(os.Stderr)
		}
	},
}

var (
	configPath string
	verbose    bool
	output     string
	lambda     float64
	returnType string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (MBR_* environment variables apply first)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print debug logs to stderr")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "", "Output CSV file (default: paths.output, then stdout)")

	reconstructCmd := &cobra.Command{
		Use:   "reconstruct",
		Short: "Calibrate on the instrumental period and reconstruct every target",
		RunE:  runReconstruct,
	}
	reconstructCmd.Flags().Float64VarP(&lambda, "lambda", "l", 1, "Mass-balance penalty weight (overrides the config)")

	cvCmd := &cobra.Command{
		Use:   "cv",
		Short: "Cross-validate the reconstruction over generated folds",
		RunE:  runCV,
	}
	cvCmd.Flags().Float64VarP(&lambda, "lambda", "l", 1, "Mass-balance penalty weight (overrides the config)")
	cvCmd.Flags().StringVarP(&returnType, "return", "r", "", "fval, metrics, metric-means or Q (overrides the config)")

	foldsCmd := &cobra.Command{
		Use:   "folds",
		Short: "Print the held-out years of every fold",
		RunE:  runFolds,
	}

	rootCmd.AddCommand(reconstructCmd, cvCmd, foldsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Err.Println(err)
		os.Exit(1)
	}
}

// setup loads the config, applies command-line overrides and reads the data.
func setup(cmd *cobra.Command) (*config.Config, *dataio.Dataset, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if f := cmd.Flags().Lookup("lambda"); f != nil && f.Changed {
		cfg.Model.Lambda = lambda
	}
	if f := cmd.Flags().Lookup("return"); f != nil && f.Changed {
		cfg.Model.ReturnType = returnType
	}
	if output != "" {
		cfg.Paths.Output = output
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	var ds *dataio.Dataset
	if cfg.Paths.Workbook != "" {
		ds, err = dataio.ReadXLSX(cfg.Paths.Workbook)
	} else {
		ds, err = dataio.LoadCSV(cfg.Paths.Instrumental, cfg.Paths.PCs)
	}
	if err != nil {
		return nil, nil, err
	}
	logger.Debug.Printf("Loaded %d targets, instrumental %d-%d, proxies from %d", ds.Inst.NumTargets(), ds.Inst.FirstYear(), ds.Inst.LastYear(), ds.StartYear)
	return cfg, ds, nil
}

// engineInputs returns the engine settings, the start year and its predictor window.
func engineInputs(cfg *config.Config, ds *dataio.Dataset) (mbr.Config, int, []*mat.Dense, error) {
	eng, err := cfg.Engine(ds.Inst.Targets)
	if err != nil {
		return mbr.Config{}, 0, nil, err
	}
	start := cfg.Model.StartYear
	if start == 0 {
		start = ds.StartYear
	}
	pcs, err := ds.Window(start)
	if err != nil {
		return mbr.Config{}, 0, nil, err
	}
	return eng, start, pcs, nil
}

// withOutput runs write against paths.output, or stdout when it is empty.
func withOutput(cfg *config.Config, write func(io.Writer) error) error {
	if cfg.Paths.Output == "" {
		return write(os.Stdout)
	}
	f, err := os.Create(cfg.Paths.Output)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	logger.Info.Printf("Wrote %s", cfg.Paths.Output)
	return nil
}

func runReconstruct(cmd *cobra.Command, args []string) error {
	cfg, ds, err := setup(cmd)
	if err != nil {
		return err
	}
	eng, start, pcs, err := engineInputs(cfg, ds)
	if err != nil {
		return err
	}
	records, err := mbr.Reconstruct(ds.Inst, pcs, start, eng)
	if err != nil {
		return fmt.Errorf("reconstruct: %w", err)
	}
	return withOutput(cfg, func(w io.Writer) error {
		return dataio.WriteFlowsCSV(w, records)
	})
}

func runCV(cmd *cobra.Command, args []string) error {
	cfg, ds, err := setup(cmd)
	if err != nil {
		return err
	}
	eng, start, pcs, err := engineInputs(cfg, ds)
	if err != nil {
		return err
	}
	rt, err := cfg.ReturnType()
	if err != nil {
		return err
	}
	folds, err := cvfolds.Make(ds.Inst.Years, cfg.FoldOptions())
	if err != nil {
		return err
	}
	res, err := mbr.CrossValidate(ds.Inst, pcs, folds, start, eng, rt)
	if err != nil {
		return fmt.Errorf("cross-validate: %w", err)
	}
	return withOutput(cfg, func(w io.Writer) error {
		return dataio.WriteCVResult(w, res)
	})
}

func runFolds(cmd *cobra.Command, args []string) error {
	cfg, ds, err := setup(cmd)
	if err != nil {
		return err
	}
	folds, err := cvfolds.Make(ds.Inst.Years, cfg.FoldOptions())
	if err != nil {
		return err
	}
	return withOutput(cfg, func(w io.Writer) error {
		return dataio.WriteFoldsCSV(w, folds, ds.Inst.Years)
	})
}
