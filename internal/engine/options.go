package engine

import (
	"time"

	"github.com/lazypower/polymath/internal/config"
)

// Defaults for the synthesis loop. The similarity thresholds are staged:
// strict history and batch checks first, a relaxed history check from
// DefaultRelaxAfterAttempt on, and forced acceptance on the last attempt.
const (
	DefaultBatchSize               = 10
	DefaultWildcardFrequency       = 4
	DefaultCreativeFrequency       = 3
	DefaultMaxAttempts             = 10
	DefaultRelaxAfterAttempt       = 7
	DefaultHistoryLimit            = 100
	DefaultHistoryThreshold        = 0.85
	DefaultBatchThreshold          = 0.75
	DefaultRelaxedHistoryThreshold = 0.90
	DefaultNoteSampleSize          = 50
	DefaultMaxContextInterests     = 5
	DefaultTemperature             = 0.7
	DefaultCreativeTemperature     = 0.9
	DefaultMaxTokens               = 1024
	DefaultInterestWindow          = 30 * 24 * time.Hour
	DefaultMinMentions             = 3
)

// Options tunes a synthesis run. Zero fields take the defaults above.
type Options struct {
	BatchSize               int
	WildcardFrequency       int
	CreativeFrequency       int
	MaxAttempts             int
	RelaxAfterAttempt       int
	HistoryLimit            int
	HistoryThreshold        float64
	BatchThreshold          float64
	RelaxedHistoryThreshold float64
	NoteSampleSize          int
	MaxContextInterests     int
	Temperature             float64
	CreativeTemperature     float64
	MaxTokens               int
	InterestWindow          time.Duration
	MinMentions             int
}

// OptionsFromConfig maps the [synthesis] and [interests] config sections.
func OptionsFromConfig(s config.SynthesisConfig, in config.InterestsConfig) Options {
	return Options{
		BatchSize:               s.BatchSize,
		WildcardFrequency:       s.WildcardFrequency,
		CreativeFrequency:       s.CreativeFrequency,
		MaxAttempts:             s.MaxAttempts,
		RelaxAfterAttempt:       s.RelaxAfterAttempt,
		HistoryLimit:            s.HistoryLimit,
		HistoryThreshold:        s.HistoryThreshold,
		BatchThreshold:          s.BatchThreshold,
		RelaxedHistoryThreshold: s.RelaxedHistoryThreshold,
		NoteSampleSize:          s.NoteSampleSize,
		MaxContextInterests:     s.MaxContextInterests,
		Temperature:             s.Temperature,
		CreativeTemperature:     s.CreativeTemperature,
		MaxTokens:               s.MaxTokens,
		InterestWindow:          time.Duration(in.WindowDays) * 24 * time.Hour,
		MinMentions:             in.MinMentions,
	}
}

func (o Options) withDefaults() Options {
	setInt := func(v *int, d int) {
		if *v <= 0 {
			*v = d
		}
	}
	setFloat := func(v *float64, d float64) {
		if *v <= 0 {
			*v = d
		}
	}

	setInt(&o.BatchSize, DefaultBatchSize)
	setInt(&o.WildcardFrequency, DefaultWildcardFrequency)
	setInt(&o.CreativeFrequency, DefaultCreativeFrequency)
	setInt(&o.MaxAttempts, DefaultMaxAttempts)
	setInt(&o.RelaxAfterAttempt, DefaultRelaxAfterAttempt)
	setInt(&o.HistoryLimit, DefaultHistoryLimit)
	setFloat(&o.HistoryThreshold, DefaultHistoryThreshold)
	setFloat(&o.BatchThreshold, DefaultBatchThreshold)
	setFloat(&o.RelaxedHistoryThreshold, DefaultRelaxedHistoryThreshold)
	setInt(&o.NoteSampleSize, DefaultNoteSampleSize)
	setInt(&o.MaxContextInterests, DefaultMaxContextInterests)
	setFloat(&o.Temperature, DefaultTemperature)
	setFloat(&o.CreativeTemperature, DefaultCreativeTemperature)
	setInt(&o.MaxTokens, DefaultMaxTokens)
	setInt(&o.MinMentions, DefaultMinMentions)
	if o.InterestWindow <= 0 {
		o.InterestWindow = DefaultInterestWindow
	}
	return o
}
