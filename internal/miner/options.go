package miner

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/internal/miner/policy"
	"github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/errors"
)

// Mode selects which high-utility itemsets are reported. Modes are
// mutually exclusive.
type Mode int

const (
	// ModeAll reports every high-utility itemset.
	ModeAll Mode = iota
	// ModeClosed reports high-utility itemsets with no proper superset of
	// equal support.
	ModeClosed
	// ModeGenerators reports high-utility itemsets with no proper subset of
	// equal support.
	ModeGenerators
	// ModeMinimal reports high-utility itemsets with no high-utility proper
	// subset.
	ModeMinimal
)

var modeNames = map[Mode]string{
	ModeAll:        "all",
	ModeClosed:     "closed",
	ModeGenerators: "generators",
	ModeMinimal:    "minimal",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode maps a configuration string to a Mode. The empty string is
// ModeAll.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeAll, nil
	}
	for m, name := range modeNames {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}
	return 0, apperrors.Invalidf("unknown mining mode %q", s)
}

// Periodicity bounds the occurrence gaps of reported itemsets. A zero upper
// bound is unbounded.
type Periodicity struct {
	MinPer int
	MaxPer int
	MinAvg float64
	MaxAvg float64
}

// Options are the thresholds and variant knobs of one mining run.
type Options struct {
	MinUtility int64
	MinSupport int
	MinLength  int
	// MaxLength of zero is unbounded.
	MaxLength int
	// Partitions enables partitioned pruning with that many tid ranges.
	Partitions    int
	AllowNegative bool
	Mode          Mode
	// FlagGenerators marks each reported itemset as generator or not,
	// independently of Mode.
	FlagGenerators bool
	EUCP           bool
	LookAhead      bool
	// Workers > 1 mines first-level subtrees concurrently.
	Workers     int
	Periodicity *Periodicity
	// Trace logs the span tree of the run phases when it completes.
	Trace bool
}

// DefaultOptions enables both pruning strategies.
func DefaultOptions(minUtility int64) Options {
	return Options{
		MinUtility: minUtility,
		EUCP:       true,
		LookAhead:  true,
		Workers:    1,
	}
}

// OptionsFromConfig converts the miner section of the configuration.
func OptionsFromConfig(cfg config.MinerConfig) (Options, error) {
	mode, err := ParseMode(cfg.Mode)
	if err != nil {
		return Options{}, err
	}
	opts := Options{
		MinUtility:     cfg.MinUtility,
		MinSupport:     cfg.MinSupport,
		MinLength:      cfg.MinLength,
		MaxLength:      cfg.MaxLength,
		Partitions:     cfg.Partitions,
		AllowNegative:  cfg.AllowNegative,
		Mode:           mode,
		FlagGenerators: cfg.FlagGenerators,
		EUCP:           cfg.EUCP,
		LookAhead:      cfg.LookAhead,
		Workers:        cfg.Workers,
	}
	if cfg.Periodicity.Enabled {
		opts.Periodicity = &Periodicity{
			MinPer: cfg.Periodicity.MinPeriodicity,
			MaxPer: cfg.Periodicity.MaxPeriodicity,
			MinAvg: cfg.Periodicity.MinAvgPeriodicity,
			MaxAvg: cfg.Periodicity.MaxAvgPeriodicity,
		}
	}
	return opts, nil
}

// Validate checks the options against a database of n transactions. It
// runs before the first pass.
func (o Options) Validate(n int) error {
	switch {
	case o.MinUtility <= 0:
		return apperrors.Invalidf("minUtility must be positive, got %d", o.MinUtility)
	case o.MinSupport < 0:
		return apperrors.Invalidf("minSupport must not be negative, got %d", o.MinSupport)
	case o.MinLength < 0 || o.MaxLength < 0:
		return apperrors.Invalidf("itemset length bounds must not be negative")
	case o.MaxLength > 0 && o.MaxLength < o.MinLength:
		return apperrors.Invalidf("maxLength %d is below minLength %d", o.MaxLength, o.MinLength)
	case o.Partitions < 0:
		return apperrors.Invalidf("partitions must not be negative, got %d", o.Partitions)
	case o.Partitions > n:
		return apperrors.Invalidf("partitions %d exceed the %d transactions", o.Partitions, n)
	case o.Workers < 0:
		return apperrors.Invalidf("workers must not be negative, got %d", o.Workers)
	}
	if _, ok := modeNames[o.Mode]; !ok {
		return apperrors.Invalidf("unknown mining mode %d", int(o.Mode))
	}
	if p := o.Periodicity; p != nil {
		switch {
		case p.MinPer < 0 || p.MaxPer < 0 || p.MinAvg < 0 || p.MaxAvg < 0:
			return apperrors.Invalidf("periodicity bounds must not be negative")
		case p.MaxPer > 0 && p.MaxPer < p.MinPer:
			return apperrors.Invalidf("maxPeriodicity %d is below minPeriodicity %d", p.MaxPer, p.MinPer)
		case p.MaxAvg > 0 && p.MaxAvg < p.MinAvg:
			return apperrors.Invalidf("maxAvgPeriodicity %g is below minAvgPeriodicity %g", p.MaxAvg, p.MinAvg)
		}
	}
	return nil
}

// NeedsTidsets reports whether certification needs item tidsets.
func (o Options) NeedsTidsets() bool {
	return o.Mode == ModeClosed || o.Mode == ModeGenerators || o.FlagGenerators
}

// constraints builds the co-constraint set for a database of n rows.
func (o Options) constraints(n int) *policy.Set {
	var cs []policy.Constraint
	if o.MinSupport > 0 {
		cs = append(cs, policy.MinSupport{Min: o.MinSupport})
	}
	if o.MinLength > 0 || o.MaxLength > 0 {
		cs = append(cs, policy.Length{Min: o.MinLength, Max: o.MaxLength})
	}
	if p := o.Periodicity; p != nil {
		cs = append(cs, policy.Periodicity{N: n, MinPer: p.MinPer, MaxPer: p.MaxPer, MinAvg: p.MinAvg, MaxAvg: p.MaxAvg})
	}
	return policy.NewSet(cs...)
}
