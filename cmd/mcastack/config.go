package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/qri-io/mcastack"
)

// viewConfig is the YAML form of the view options.
type viewConfig struct {
	ChannelAxis  int     `yaml:"channel_axis"`
	ChannelSlice string  `yaml:"channel_slice"`
	RowCapacity  int     `yaml:"row_capacity"`
	MemoryMargin float64 `yaml:"memory_margin"`
	MinRows      int     `yaml:"min_rows"`
	Order        []int   `yaml:"order"`
	// Mask holds one coordinate list per order axis.
	Mask [][]int `yaml:"mask"`
}

func defaultViewConfig() viewConfig {
	return viewConfig{
		ChannelAxis:  -1,
		MemoryMargin: mcastack.DefaultMemoryMargin,
		MinRows:      1,
	}
}

// loadViewConfig reads path over the defaults. An empty path keeps the
// defaults; environment variables override both.
func loadViewConfig(path string) (viewConfig, error) {
	cfg := defaultViewConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := loadViewConfigFromEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadViewConfigFromEnv(cfg *viewConfig) error {
	if v := os.Getenv("MCASTACK_ROW_CAPACITY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MCASTACK_ROW_CAPACITY: %w", err)
		}
		cfg.RowCapacity = n
	}
	if v := os.Getenv("MCASTACK_MEMORY_MARGIN"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("MCASTACK_MEMORY_MARGIN: %w", err)
		}
		cfg.MemoryMargin = f
	}
	return nil
}

// options turns the config into view options.
func (c viewConfig) options() ([]mcastack.Option, error) {
	channels, err := mcastack.ParseSlice(c.ChannelSlice)
	if err != nil {
		return nil, fmt.Errorf("channel_slice: %w", err)
	}
	opts := []mcastack.Option{
		mcastack.WithChannelAxis(c.ChannelAxis),
		mcastack.WithChannelSlice(channels),
		mcastack.WithMemoryMargin(c.MemoryMargin),
		mcastack.WithMinRows(c.MinRows),
	}
	if c.RowCapacity > 0 {
		opts = append(opts, mcastack.WithRowCapacity(c.RowCapacity))
	}
	if len(c.Order) > 0 {
		opts = append(opts, mcastack.WithOrder(c.Order...))
	}
	if len(c.Mask) > 0 {
		opts = append(opts, mcastack.WithMask(mcastack.IndexMask(c.Mask)))
	}
	return opts, nil
}
