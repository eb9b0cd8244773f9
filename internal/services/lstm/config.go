package lstm

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// Config carries every hyperparameter of a train-then-forecast run.
type Config struct {
	Lookback      int     `yaml:"lookback" json:"lookback" default:"60" validate:"gte=1"`
	Horizon       int     `yaml:"horizon" json:"horizon" default:"30" validate:"gte=1"`
	Epochs        int     `yaml:"epochs" json:"epochs" default:"100" validate:"gte=1"`
	BatchSize     int     `yaml:"batch_size" json:"batch_size" default:"32" validate:"gte=1"`
	LearningRate  float64 `yaml:"learning_rate" json:"learning_rate" default:"0.001" validate:"gt=0"`
	HiddenSize    int     `yaml:"hidden_size" json:"hidden_size" default:"50" validate:"gte=1"`
	TrainFraction float64 `yaml:"train_fraction" json:"train_fraction" default:"0.8" validate:"gt=0,lte=1"`
	// Seed pins initialisation, split and shuffling. Zero seeds from the clock.
	Seed    int64 `yaml:"seed" json:"seed"`
	Workers int   `yaml:"workers" json:"workers" default:"1" validate:"gte=1,lte=64"`
}

var validate = validator.New()

// DefaultConfig returns the stock hyperparameters.
func DefaultConfig() Config {
	var c Config
	_ = defaults.Set(&c)
	return c
}

// WithDefaults fills zero-valued fields from the default tags.
func (c Config) WithDefaults() (Config, error) {
	if err := defaults.Set(&c); err != nil {
		return c, fmt.Errorf("lstm config defaults: %w", err)
	}
	return c, nil
}

// Validate checks the hyperparameter ranges.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("lstm config: %w", err)
	}
	return nil
}

// Rand returns the generator for one run.
func (c Config) Rand() *rand.Rand {
	seed := c.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}
