package synth

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/MiZuii/Gloomhaven-Monster-Recognizer/internal/export"
)

// fileConfig is the on-disk form of a Config.
type fileConfig struct {
	Library string   `mapstructure:"library"`
	Out     string   `mapstructure:"out"`
	Exclude []string `mapstructure:"exclude"`
	Splits  []struct {
		Name     string  `mapstructure:"name"`
		Fraction float64 `mapstructure:"fraction"`
		Repeats  int     `mapstructure:"repeats"`
		Canvases int     `mapstructure:"canvases"`
	} `mapstructure:"splits"`
	Canvas struct {
		Width  int `mapstructure:"width"`
		Height int `mapstructure:"height"`
	} `mapstructure:"canvas"`
	Scale struct {
		Min float64 `mapstructure:"min"`
		Max float64 `mapstructure:"max"`
	} `mapstructure:"scale"`
	Placement struct {
		Trials    int     `mapstructure:"trials"`
		Clearance float64 `mapstructure:"clearance"`
	} `mapstructure:"placement"`
	Seed        int64  `mapstructure:"seed"`
	CacheSize   int    `mapstructure:"cache_size"`
	Workers     int    `mapstructure:"workers"`
	JPEGQuality int    `mapstructure:"jpeg_quality"`
	MaskExt     string `mapstructure:"mask_ext"`
	Preview     bool   `mapstructure:"preview"`
	TFRecord    bool   `mapstructure:"tfrecord"`
	Classes     string `mapstructure:"classes"`
	Debug       bool   `mapstructure:"debug"`
}

// LoadConfig reads a YAML run configuration. Keys missing from the file keep their
// DefaultConfig values; a file without splits uses DefaultSplits. A classes entry
// names a data.yaml whose class names are loaded. The result is not validated.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v, DefaultConfig())

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg := Config{
		LibraryRoot:  fc.Library,
		OutputRoot:   fc.Out,
		Exclude:      fc.Exclude,
		Splits:       DefaultSplits(),
		CanvasWidth:  fc.Canvas.Width,
		CanvasHeight: fc.Canvas.Height,
		ScaleMin:     fc.Scale.Min,
		ScaleMax:     fc.Scale.Max,
		Trials:       fc.Placement.Trials,
		Clearance:    fc.Placement.Clearance,
		Seed:         fc.Seed,
		CacheSize:    fc.CacheSize,
		Workers:      fc.Workers,
		JPEGQuality:  fc.JPEGQuality,
		MaskExt:      fc.MaskExt,
		Preview:      fc.Preview,
		TFRecord:     fc.TFRecord,
		Debug:        fc.Debug,
	}
	if len(fc.Splits) > 0 {
		cfg.Splits = make([]SplitConfig, len(fc.Splits))
		for i, s := range fc.Splits {
			cfg.Splits[i] = SplitConfig{Name: s.Name, Fraction: s.Fraction, Repeats: s.Repeats, Canvases: s.Canvases}
		}
	}
	if fc.Classes != "" {
		names, err := export.LoadClassNames(fc.Classes)
		if err != nil {
			return Config{}, err
		}
		cfg.ClassNames = names
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("library", d.LibraryRoot)
	v.SetDefault("out", d.OutputRoot)
	v.SetDefault("canvas.width", d.CanvasWidth)
	v.SetDefault("canvas.height", d.CanvasHeight)
	v.SetDefault("scale.min", d.ScaleMin)
	v.SetDefault("scale.max", d.ScaleMax)
	v.SetDefault("placement.trials", d.Trials)
	v.SetDefault("placement.clearance", d.Clearance)
	v.SetDefault("seed", d.Seed)
	v.SetDefault("cache_size", d.CacheSize)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("jpeg_quality", d.JPEGQuality)
	v.SetDefault("mask_ext", d.MaskExt)
}
