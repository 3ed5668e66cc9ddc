// config.go - Trainings-Konfiguration aus YAML/JSON/TOML
//
// Pflichtfelder: batch_size, num_epochs, learning_rate. Alle anderen Keys
// haben Defaults. Unbekannte oder falsch typisierte Keys sind ein Fehler.
package train

import (
	"fmt"
	"slices"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/7blacky7/codetrans/model"
)

// Lernraten-Verlauf
const (
	ScheduleCosine  = "cosine"
	SchedulePlateau = "plateau"
)

// Config enthaelt alle Parameter eines Trainingslaufs
type Config struct {
	BatchSize    int     `mapstructure:"batch_size" json:"batch_size"`
	NumEpochs    int     `mapstructure:"num_epochs" json:"num_epochs"`
	LearningRate float64 `mapstructure:"learning_rate" json:"learning_rate"`

	Patience         int     `mapstructure:"patience" json:"patience"`
	MinDelta         float64 `mapstructure:"min_delta" json:"min_delta"`
	MaxGradNorm      float64 `mapstructure:"max_grad_norm" json:"max_grad_norm"`
	WeightDecay      float64 `mapstructure:"weight_decay" json:"weight_decay"`
	MinLR            float64 `mapstructure:"min_lr" json:"min_lr"`
	Dropout          float64 `mapstructure:"dropout" json:"dropout"`
	AttentionDropout float64 `mapstructure:"attention_dropout" json:"attention_dropout"`
	LabelSmoothing   float64 `mapstructure:"label_smoothing" json:"label_smoothing"`
	MaxLength        int     `mapstructure:"max_length" json:"max_length"`
	AugmentationProb float64 `mapstructure:"augmentation_prob" json:"augmentation_prob"`

	EmbeddingDim       int     `mapstructure:"embedding_dim" json:"embedding_dim"`
	HiddenDim          int     `mapstructure:"hidden_dim" json:"hidden_dim"`
	CheckpointInterval int     `mapstructure:"checkpoint_interval" json:"checkpoint_interval"`
	WarmupSteps        int     `mapstructure:"warmup_steps" json:"warmup_steps"`
	LRSchedule         string  `mapstructure:"lr_schedule" json:"lr_schedule"`
	PlateauPatience    int     `mapstructure:"plateau_patience" json:"plateau_patience"`
	PlateauFactor      float64 `mapstructure:"plateau_factor" json:"plateau_factor"`
	SWAStartEpoch      int     `mapstructure:"swa_start_epoch" json:"swa_start_epoch"`
	Seed               int64   `mapstructure:"seed" json:"seed"`
	ValSplit           float64 `mapstructure:"val_split" json:"val_split"`
	VocabMinFreq       int     `mapstructure:"vocab_min_freq" json:"vocab_min_freq"`
	VocabMaxSize       int     `mapstructure:"vocab_max_size" json:"vocab_max_size"`

	Decoding    string  `mapstructure:"decoding" json:"decoding"`
	TopK        int     `mapstructure:"top_k" json:"top_k"`
	BeamSize    int     `mapstructure:"beam_size" json:"beam_size"`
	Temperature float64 `mapstructure:"temperature" json:"temperature"`

	SourceLang  string `mapstructure:"source_lang" json:"source_lang"`
	TargetLang  string `mapstructure:"target_lang" json:"target_lang"`
	EvalWorkers int    `mapstructure:"eval_workers" json:"eval_workers"`
}

var requiredKeys = []string{"batch_size", "num_epochs", "learning_rate"}

// defaults fuer alle optionalen Keys
var defaults = map[string]any{
	"patience":            5,
	"min_delta":           1e-4,
	"max_grad_norm":       1.0,
	"weight_decay":        0.01,
	"min_lr":              1e-6,
	"dropout":             0.1,
	"attention_dropout":   0.1,
	"label_smoothing":     0.1,
	"max_length":          256,
	"augmentation_prob":   0.0,
	"embedding_dim":       64,
	"hidden_dim":          128,
	"checkpoint_interval": 500,
	"warmup_steps":        100,
	"lr_schedule":         ScheduleCosine,
	"plateau_patience":    2,
	"plateau_factor":      0.5,
	"swa_start_epoch":     0,
	"seed":                42,
	"val_split":           0.1,
	"vocab_min_freq":      1,
	"vocab_max_size":      0,
	"decoding":            string(model.Greedy),
	"top_k":               5,
	"beam_size":           4,
	"temperature":         1.0,
	"source_lang":         "",
	"target_lang":         "",
	"eval_workers":        0,
}

// MissingKeyError meldet fehlende Pflichtfelder
type MissingKeyError struct {
	Keys []string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("config: missing required keys %v", e.Keys)
}

// DefaultConfig gibt die Defaults mit den gegebenen Pflichtwerten zurueck
func DefaultConfig(batchSize, numEpochs int, learningRate float64) Config {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.Set("batch_size", batchSize)
	v.Set("num_epochs", numEpochs)
	v.Set("learning_rate", learningRate)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return cfg
}

// LoadConfig liest eine Konfigurationsdatei, das Format folgt der Endung
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (Config, error) {
	var missing []string
	for _, k := range requiredKeys {
		if !v.IsSet(k) {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return Config{}, &MissingKeyError{Keys: missing}
	}

	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	var cfg Config
	err := v.UnmarshalExact(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = false
		dc.ErrorUnused = true
	})
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate prueft Wertebereiche
func (c Config) Validate() error {
	switch {
	case c.BatchSize <= 0:
		return fmt.Errorf("config: batch_size must be positive, got %d", c.BatchSize)
	case c.NumEpochs <= 0:
		return fmt.Errorf("config: num_epochs must be positive, got %d", c.NumEpochs)
	case c.LearningRate <= 0:
		return fmt.Errorf("config: learning_rate must be positive, got %v", c.LearningRate)
	case c.Patience <= 0:
		return fmt.Errorf("config: patience must be positive, got %d", c.Patience)
	case c.MinDelta < 0:
		return fmt.Errorf("config: min_delta must not be negative, got %v", c.MinDelta)
	case c.MaxGradNorm <= 0:
		return fmt.Errorf("config: max_grad_norm must be positive, got %v", c.MaxGradNorm)
	case c.WeightDecay < 0:
		return fmt.Errorf("config: weight_decay must not be negative, got %v", c.WeightDecay)
	case c.MinLR < 0 || c.MinLR > c.LearningRate:
		return fmt.Errorf("config: min_lr must be in [0, learning_rate], got %v", c.MinLR)
	case c.MaxLength <= 1:
		return fmt.Errorf("config: max_length must be greater than 1, got %d", c.MaxLength)
	case c.AugmentationProb < 0 || c.AugmentationProb > 1:
		return fmt.Errorf("config: augmentation_prob must be in [0,1], got %v", c.AugmentationProb)
	case c.CheckpointInterval < 0 || c.WarmupSteps < 0 || c.SWAStartEpoch < 0:
		return fmt.Errorf("config: checkpoint_interval, warmup_steps and swa_start_epoch must not be negative")
	case !slices.Contains([]string{ScheduleCosine, SchedulePlateau}, c.LRSchedule):
		return fmt.Errorf("config: lr_schedule must be %q or %q, got %q", ScheduleCosine, SchedulePlateau, c.LRSchedule)
	case c.PlateauPatience <= 0 || c.PlateauFactor <= 0 || c.PlateauFactor >= 1:
		return fmt.Errorf("config: plateau_patience must be positive and plateau_factor in (0,1)")
	case c.ValSplit < 0 || c.ValSplit >= 1:
		return fmt.Errorf("config: val_split must be in [0,1), got %v", c.ValSplit)
	case !slices.Contains([]model.Strategy{model.Greedy, model.TopK, model.Beam}, model.Strategy(c.Decoding)):
		return fmt.Errorf("config: unknown decoding strategy %q", c.Decoding)
	}

	return c.Model(1).Validate()
}

// Model gibt die Modell-Konfiguration fuer ein Vokabular der Groesse vocabSize zurueck
func (c Config) Model(vocabSize int) model.Config {
	return model.Config{
		VocabSize:        vocabSize,
		EmbeddingDim:     c.EmbeddingDim,
		HiddenDim:        c.HiddenDim,
		Dropout:          c.Dropout,
		AttentionDropout: c.AttentionDropout,
		LabelSmoothing:   c.LabelSmoothing,
	}
}

// DecodeOptions gibt die Decoding-Parameter fuer Evaluation und Serving zurueck
func (c Config) DecodeOptions() model.DecodeOptions {
	return model.DecodeOptions{
		Strategy:    model.Strategy(c.Decoding),
		MaxLength:   c.MaxLength,
		TopK:        c.TopK,
		BeamSize:    c.BeamSize,
		Temperature: c.Temperature,
		Seed:        uint64(c.Seed),
	}
}
