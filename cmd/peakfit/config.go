package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/n0madic/go-peakfit/costfunc"
	"github.com/n0madic/go-peakfit/fit"
	"github.com/n0madic/go-peakfit/function"
	"github.com/n0madic/go-peakfit/minimizer"
)

// Config is the fit configuration read from YAML, environment and flags.
type Config struct {
	// Model is a registered function name, or several joined with "+" for a sum.
	Model         string            `mapstructure:"model" yaml:"model"`
	Parameters    []ParameterConfig `mapstructure:"parameters" yaml:"parameters"`
	Data          string            `mapstructure:"data" yaml:"data"`
	Minimizer     string            `mapstructure:"minimizer" yaml:"minimizer"`
	MaxIterations int               `mapstructure:"max_iterations" yaml:"max_iterations"`
	MuMax         float64           `mapstructure:"mu_max" yaml:"mu_max"`
	AbsError      float64           `mapstructure:"abs_error" yaml:"abs_error"`
	Debug         bool              `mapstructure:"debug" yaml:"debug"`
	Workers       int               `mapstructure:"workers" yaml:"workers"`
	// Guess seeds the centre, height and width of the first peak from the data.
	Guess bool `mapstructure:"guess" yaml:"guess"`
}

// ParameterConfig sets the start value of one parameter. Tie makes the
// parameter follow another one, scaled by Factor (1 when unset).
type ParameterConfig struct {
	Name   string  `mapstructure:"name" yaml:"name"`
	Value  float64 `mapstructure:"value" yaml:"value"`
	Fixed  bool    `mapstructure:"fixed" yaml:"fixed"`
	Tie    string  `mapstructure:"tie" yaml:"tie,omitempty"`
	Factor float64 `mapstructure:"factor" yaml:"factor,omitempty"`
}

var errInvalidConfig = errors.New("invalid config")

func setDefaults(v *viper.Viper) {
	def := minimizer.DefaultConfig()
	v.SetDefault("model", "")
	v.SetDefault("data", "")
	v.SetDefault("minimizer", minimizer.LevenbergMarquardtName)
	v.SetDefault("max_iterations", fit.DefaultMaxIterations)
	v.SetDefault("mu_max", def.MuMax)
	v.SetDefault("abs_error", def.AbsError)
	v.SetDefault("debug", false)
	v.SetDefault("workers", 0)
	v.SetDefault("guess", false)
}

// loadConfig reads the YAML file at path, then applies PEAKFIT_* environment
// variables and the flags in flags that were set on the command line.
func loadConfig(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PEAKFIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range map[string]string{
			"data":           "data",
			"minimizer":      "minimizer",
			"max_iterations": "max-iterations",
			"debug":          "debug",
		} {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Model == "" {
		return fmt.Errorf("%w: model is required", errInvalidConfig)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("%w: max_iterations must be positive, got %d", errInvalidConfig, c.MaxIterations)
	}
	if c.MuMax <= 0 {
		return fmt.Errorf("%w: mu_max must be positive, got %g", errInvalidConfig, c.MuMax)
	}
	if c.AbsError <= 0 {
		return fmt.Errorf("%w: abs_error must be positive, got %g", errInvalidConfig, c.AbsError)
	}
	for _, p := range c.Parameters {
		if p.Name == "" {
			return fmt.Errorf("%w: parameter without a name", errInvalidConfig)
		}
	}
	return nil
}

// buildModel creates the model function with the configured start values,
// fixes and ties. With Guess set and data given, the first peak is seeded
// from data before the configured values are applied.
func (c *Config) buildModel(data *costfunc.Data) (function.Function, error) {
	names := strings.Split(c.Model, "+")
	var f function.Function
	if len(names) == 1 {
		var err error
		if f, err = function.New(strings.TrimSpace(names[0])); err != nil {
			return nil, err
		}
	} else {
		members := make([]function.Function, len(names))
		for i, name := range names {
			m, err := function.New(strings.TrimSpace(name))
			if err != nil {
				return nil, err
			}
			members[i] = m
		}
		f = function.NewComposite(members...)
	}

	if c.Guess && data != nil {
		peak, ok := firstPeak(f)
		if !ok {
			return nil, fmt.Errorf("%w: guess needs a peak function in %s", errInvalidConfig, c.Model)
		}
		if err := fit.GuessPeak(peak, data); err != nil {
			return nil, err
		}
	}

	for _, p := range c.Parameters {
		i, err := f.ParameterIndex(p.Name)
		if err != nil {
			return nil, err
		}
		f.SetParameter(i, p.Value)
		if p.Fixed {
			f.Fix(i)
		}
		if p.Tie != "" {
			if _, err := f.ParameterIndex(p.Tie); err != nil {
				return nil, fmt.Errorf("tie of %s: %w", p.Name, err)
			}
			factor := p.Factor
			if factor == 0 {
				factor = 1
			}
			f.Tie(i, function.TieTo(p.Tie, factor))
		}
	}
	f.ApplyTies()
	return f, nil
}

func firstPeak(f function.Function) (function.PeakFunction, bool) {
	if c, ok := f.(*function.Composite); ok {
		for i := 0; i < c.Members(); i++ {
			if p, ok := c.Member(i).(function.PeakFunction); ok {
				return p, true
			}
		}
		return nil, false
	}
	p, ok := f.(function.PeakFunction)
	return p, ok
}

func (c *Config) fitOptions(logger logr.Logger) []fit.Option {
	return []fit.Option{
		fit.WithMinimizer(c.Minimizer),
		fit.WithMaxIterations(c.MaxIterations),
		fit.WithLogger(logger),
		fit.WithMinimizerOptions(
			minimizer.WithMuMax(c.MuMax),
			minimizer.WithAbsError(c.AbsError),
			minimizer.WithDebug(c.Debug),
		),
	}
}
