// Command peakfit fits model functions to x,y data and integrates peak
// functions.
package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/n0madic/go-peakfit/fit"
	"github.com/n0madic/go-peakfit/function"
	"github.com/n0madic/go-peakfit/integrate"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:          "peakfit",
		Short:        "Least-squares fitting and integration of peak functions",
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose (debug level) logging")

	root.AddCommand(
		newFitCmd(&verbose),
		newIntegrateCmd(),
		newShowCmd(),
		newFunctionsCmd(),
	)
	return root
}

// newLogger builds a zap logger behind logr: production JSON at info level,
// or development console output at debug level when verbose.
func newLogger(verbose bool) (logr.Logger, func(), error) {
	zc := zap.NewProductionConfig()
	if verbose {
		zc = zap.NewDevelopmentConfig()
	}
	zl, err := zc.Build()
	if err != nil {
		return logr.Discard(), func() {}, err
	}
	return zapr.NewLogger(zl), func() { _ = zl.Sync() }, nil
}

type fitFlags struct {
	config string
	output string
	plot   string
	save   string
	lower  float64
	upper  float64
}

func newFitCmd(verbose *bool) *cobra.Command {
	var ff fitFlags
	cmd := &cobra.Command{
		Use:   "fit [data.csv...]",
		Short: "Fit the configured model to one or more datasets",
		Long: `Fit the model described in the YAML config to x,y[,error] CSV data.
Datasets given as arguments are fitted concurrently; without arguments the
config's data file is used. Settings can be overridden with PEAKFIT_* environment
variables and flags.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(ff.config, cmd.Flags())
			if err != nil {
				return err
			}
			logger, sync, err := newLogger(*verbose)
			if err != nil {
				return err
			}
			defer sync()
			return runFit(cmd.Context(), cmd.OutOrStdout(), cfg, args, ff, logger)
		},
	}
	cmd.Flags().StringVarP(&ff.config, "config", "c", "", "YAML config file")
	cmd.Flags().String("data", "", "CSV data file (overrides config)")
	cmd.Flags().String("minimizer", "", "Minimizer name (overrides config)")
	cmd.Flags().Int("max-iterations", 0, "Iteration budget (overrides config)")
	cmd.Flags().Bool("debug", false, "Log every minimizer iteration")
	cmd.Flags().StringVarP(&ff.output, "output", "o", "", "Write the YAML report to a file instead of stdout")
	cmd.Flags().StringVar(&ff.plot, "plot", "", "Save a plot of data and fit (PNG, SVG or PDF by extension)")
	cmd.Flags().StringVar(&ff.save, "save", "", "Save the fit result in gob format")
	cmd.Flags().Float64Var(&ff.lower, "lower", math.Inf(-1), "Lower bound for the peak integral")
	cmd.Flags().Float64Var(&ff.upper, "upper", math.Inf(1), "Upper bound for the peak integral")
	return cmd
}

func runFit(ctx context.Context, stdout io.Writer, cfg *Config, paths []string, ff fitFlags, logger logr.Logger) error {
	if len(paths) == 0 {
		if cfg.Data == "" {
			return fmt.Errorf("%w: no data file", errInvalidConfig)
		}
		paths = []string{cfg.Data}
	}
	if len(paths) > 1 && (ff.plot != "" || ff.save != "") {
		return fmt.Errorf("%w: --plot and --save need a single dataset", errInvalidConfig)
	}

	jobs := make([]fit.Job, len(paths))
	for i, path := range paths {
		x, y, e, err := readDataFile(path)
		if err != nil {
			return err
		}
		data, err := fit.NewData(x, y, e)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		f, err := cfg.buildModel(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		jobs[i] = fit.Job{
			Name:     path,
			Function: f,
			Data:     data,
			Options:  cfg.fitOptions(logger.WithValues("dataset", filepath.Base(path))),
		}
	}

	results, err := fit.Batch(ctx, jobs, cfg.Workers)
	if err != nil {
		return err
	}

	integrator := integrate.NewPeakIntegrator()
	reports := make([]report, len(results))
	failed := 0
	for i, r := range results {
		reports[i].Dataset = r.Name
		if r.Err != nil {
			reports[i].Error = r.Err.Error()
			failed++
			continue
		}
		reports[i].Fit = r.Result
		reports[i].Peak = peakReport(integrator, r.Result.Function, ff.lower, ff.upper)
		if !r.Result.Converged {
			failed++
		}
		logger.Info("fit done", "dataset", r.Name, "status", r.Result.Status, "chi2", r.Result.ReducedChiSquared)
	}

	out := stdout
	if ff.output != "" {
		file, err := os.Create(ff.output)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}
	if err := writeReports(out, reports); err != nil {
		return err
	}

	if len(jobs) == 1 && results[0].Result != nil {
		if ff.plot != "" {
			if err := writePlot(ff.plot, results[0].Result.Model, jobs[0].Data, jobs[0].Function); err != nil {
				return err
			}
		}
		if ff.save != "" {
			if err := saveResult(ff.save, results[0].Result); err != nil {
				return err
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d fits failed", failed, len(results))
	}
	return nil
}

func saveResult(path string, res *fit.Result) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := res.Save(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func newIntegrateCmd() *cobra.Command {
	var (
		model     string
		params    []string
		errs      []string
		lower     float64
		upper     float64
		precision float64
	)
	cmd := &cobra.Command{
		Use:   "integrate",
		Short: "Integrate a peak function over a range",
		Example: `  peakfit integrate --model Gaussian --param Height=1 --param Sigma=1 --lower -1 --upper 1
  peakfit integrate --model Lorentzian --param Amplitude=2 --error Amplitude=0.1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			peak, err := function.NewPeak(model)
			if err != nil {
				return err
			}
			if err := assignValues(params, func(name string, v float64) error {
				return function.SetParameterByName(peak, name, v)
			}); err != nil {
				return err
			}
			if err := assignValues(errs, func(name string, v float64) error {
				i, err := peak.ParameterIndex(name)
				if err != nil {
					return err
				}
				peak.SetError(i, v)
				return nil
			}); err != nil {
				return err
			}

			integrator := integrate.NewPeakIntegrator(integrate.WithRelativePrecision(precision))
			rep := peakReport(integrator, peak, lower, upper)
			if err := writeReports(cmd.OutOrStdout(), []report{{Peak: rep}}); err != nil {
				return err
			}
			if rep.Status != integrate.Success.String() {
				return fmt.Errorf("integration failed: %s", rep.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "Gaussian", "Peak function name")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Parameter value as Name=Value (repeatable)")
	cmd.Flags().StringArrayVar(&errs, "error", nil, "Parameter error as Name=Value (repeatable)")
	cmd.Flags().Float64Var(&lower, "lower", math.Inf(-1), "Lower bound (may be -inf)")
	cmd.Flags().Float64Var(&upper, "upper", math.Inf(1), "Upper bound (may be inf)")
	cmd.Flags().Float64Var(&precision, "precision", integrate.DefaultRelativePrecision, "Required relative precision")
	return cmd
}

// assignValues parses Name=Value pairs and hands each to set.
func assignValues(pairs []string, set func(name string, v float64) error) error {
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("expected Name=Value, got %q", pair)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if err := set(strings.TrimSpace(name), v); err != nil {
			return err
		}
	}
	return nil
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show result.gob",
		Short: "Print a saved fit result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			res, err := fit.LoadResult(file)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return writeReports(cmd.OutOrStdout(), []report{{Dataset: args[0], Fit: res}})
		},
	}
}

func newFunctionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "functions",
		Short: "List the available model functions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			for _, name := range function.Names() {
				f, err := function.New(name)
				if err != nil {
					return err
				}
				params := make([]string, f.NParams())
				for i := range params {
					params[i] = f.ParameterName(i)
				}
				if _, err := fmt.Fprintf(w, "%s(%s)\n", name, strings.Join(params, ", ")); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
