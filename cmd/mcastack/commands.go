package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/qri-io/mcastack"
	"github.com/qri-io/mcastack/metrics"
	"github.com/qri-io/mcastack/zarr"
)

// cli holds the state shared by the subcommands of one invocation.
type cli struct {
	storeDir   string
	configPath string
	verbose    bool
	showStats  bool

	// view flags
	channelAxis int
	channels    string
	rows        int
	margin      float64
	order       []int

	logger    *slog.Logger
	registry  *prometheus.Registry
	collector *metrics.Collector
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:          "mcastack",
		Short:        "Traverse spectral stacks in memory-bounded chunks",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if c.verbose {
				level = slog.LevelDebug
			}
			c.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			c.registry = prometheus.NewRegistry()
			c.collector = metrics.NewCollector(c.registry)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if !c.showStats {
				return nil
			}
			return writeStats(cmd.ErrOrStderr(), c.registry)
		},
	}
	root.PersistentFlags().StringVar(&c.storeDir, "store", ".", "Directory of the zarr store")
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "YAML view configuration file")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Log every chunk")
	root.PersistentFlags().BoolVar(&c.showStats, "stats", false, "Print traversal metrics when done")

	root.AddCommand(
		c.createCmd(),
		c.infoCmd(),
		c.viewCmd("plan", "List the chunks a traversal visits", c.runPlan),
		c.viewCmd("sum", "Sum the selected spectra channel by channel", c.runSum),
		c.scaleCmd(),
	)
	return root
}

func (c *cli) store() (*zarr.LocalStore, error) {
	return zarr.NewLocalStore(c.storeDir)
}

func (c *cli) createCmd() *cobra.Command {
	var (
		shape, chunks []int
		dtype, codec  string
		fill          float64
		mode          string
	)
	cmd := &cobra.Command{
		Use:   "create ARRAY",
		Short: "Create an empty array",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dt, err := zarr.ParseDtype(dtype)
			if err != nil {
				return err
			}
			pm, err := zarr.ParsePersistenceMode(mode)
			if err != nil {
				return err
			}
			if len(chunks) == 0 {
				chunks = shape
			}
			meta := zarr.NewArrayMeta(shape, chunks, dt)
			meta.SetFill(fill)
			if codec != "" {
				meta.Compressor = &zarr.CompressionMeta{ID: codec}
			}
			s, err := c.store()
			if err != nil {
				return err
			}
			a, err := zarr.Create(s, args[0], meta, pm)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), a.Info())
			return nil
		},
	}
	cmd.Flags().IntSliceVar(&shape, "shape", nil, "Array shape, e.g. 100,2048")
	cmd.Flags().IntSliceVar(&chunks, "chunks", nil, "Chunk shape (default: one chunk)")
	cmd.Flags().StringVar(&dtype, "dtype", zarr.Float64.String(), "Element type")
	cmd.Flags().StringVar(&codec, "compressor", "", "Chunk compressor: zstd or gzip")
	cmd.Flags().Float64Var(&fill, "fill", 0, "Fill value")
	cmd.Flags().StringVar(&mode, "mode", string(zarr.ModeWriteFail), "Persistence mode: a, w or w-")
	cmd.MarkFlagRequired("shape")
	return cmd
}

func (c *cli) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info ARRAY",
		Short: "Describe an array",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(args[0], zarr.ModeRead)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, a.Info())
			fmt.Fprintf(out, "grid: %v\n", a.GridShape())
			attrs, err := a.Attributes()
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(attrs))
			for k := range attrs {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "attr %s: %v\n", k, attrs[k])
			}
			return nil
		},
	}
}

func (c *cli) open(path string, mode zarr.PersistenceMode) (*zarr.Array, error) {
	s, err := c.store()
	if err != nil {
		return nil, err
	}
	return zarr.Open(s, path, mode)
}

func (c *cli) addViewFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&c.channelAxis, "channel-axis", -1, "Axis holding the channels")
	cmd.Flags().StringVar(&c.channels, "channels", "", "Channel slice, start:stop:step")
	cmd.Flags().IntVar(&c.rows, "rows", 0, "Rows per chunk (default: derived from free memory)")
	cmd.Flags().Float64Var(&c.margin, "margin", mcastack.DefaultMemoryMargin, "Fraction of free memory to buffer")
	cmd.Flags().IntSliceVar(&c.order, "order", nil, "Traversal order of the non-channel axes, fastest first")
}

// viewOptions merges the config file with the flags set on cmd.
func (c *cli) viewOptions(cmd *cobra.Command) ([]mcastack.Option, error) {
	cfg, err := loadViewConfig(c.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("channel-axis") {
		cfg.ChannelAxis = c.channelAxis
	}
	if flags.Changed("channels") {
		cfg.ChannelSlice = c.channels
	}
	if flags.Changed("rows") {
		cfg.RowCapacity = c.rows
	}
	if flags.Changed("margin") {
		cfg.MemoryMargin = c.margin
	}
	if flags.Changed("order") {
		cfg.Order = c.order
	}
	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}
	observer := mcastack.Observers(mcastack.SlogObserver(c.logger), c.collector.Observe)
	return append(opts, mcastack.WithObserver(observer)), nil
}

type viewRun func(ctx context.Context, out io.Writer, v *mcastack.View) error

func (c *cli) viewCmd(use, short string, run viewRun) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " ARRAY",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runView(cmd, args[0], zarr.ModeRead, run)
		},
	}
	c.addViewFlags(cmd)
	return cmd
}

func (c *cli) runView(cmd *cobra.Command, path string, mode zarr.PersistenceMode, run viewRun, extra ...mcastack.Option) error {
	a, err := c.open(path, mode)
	if err != nil {
		return err
	}
	opts, err := c.viewOptions(cmd)
	if err != nil {
		return err
	}
	v, err := mcastack.NewView(a, append(opts, extra...)...)
	if err != nil {
		return err
	}
	return run(cmd.Context(), cmd.OutOrStdout(), v)
}

func (c *cli) runPlan(_ context.Context, out io.Writer, v *mcastack.View) error {
	p := v.Plan()
	fmt.Fprintf(out, "rows per chunk: %d\nchannels: %d\nchunks: %d\ntotal rows: %d\n",
		p.Rows(), p.Channels(), p.NumChunks(), p.Total())
	n := 0
	for ch := range p.Chunks() {
		fmt.Fprintf(out, "%d\t%s\t%v\t%d\n", n, formatIndex(ch.Index), ch.Shape, ch.Count)
		n++
	}
	return nil
}

func (c *cli) runSum(ctx context.Context, out io.Writer, v *mcastack.View) error {
	sum := make([]float64, v.Channels())
	it, err := v.ItemsContext(ctx, mcastack.KeyAll)
	if err != nil {
		return err
	}
	for it.Next() {
		blk := it.Block()
		for i := range blk.Rows {
			for j, x := range blk.Row(i) {
				sum[j] += x
			}
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	parts := make([]string, len(sum))
	for j, x := range sum {
		parts[j] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	fmt.Fprintln(out, strings.Join(parts, " "))
	return nil
}

func (c *cli) scaleCmd() *cobra.Command {
	var factor float64
	cmd := &cobra.Command{
		Use:   "scale ARRAY",
		Short: "Multiply the selected spectra in place",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run := func(ctx context.Context, out io.Writer, v *mcastack.View) error {
				it, err := v.ItemsContext(ctx, mcastack.KeyAll)
				if err != nil {
					return err
				}
				for it.Next() {
					blk := it.Block()
					for i := range blk.Data {
						blk.Data[i] *= factor
					}
				}
				if err := it.Err(); err != nil {
					return err
				}
				fmt.Fprintf(out, "scaled %d rows by %g\n", v.Plan().Total(), factor)
				return nil
			}
			return c.runView(cmd, args[0], zarr.ModeReadWrite, run, mcastack.WithReadOnly(false))
		},
	}
	c.addViewFlags(cmd)
	cmd.Flags().Float64Var(&factor, "factor", 1, "Multiplier")
	return cmd
}

func formatIndex(idx mcastack.Index) string {
	parts := make([]string, len(idx))
	for i, sel := range idx {
		switch s := sel.(type) {
		case mcastack.Slice:
			parts[i] = s.String()
		case mcastack.Point:
			parts[i] = strconv.Itoa(int(s))
		case mcastack.List:
			parts[i] = fmt.Sprint([]int(s))
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// writeStats prints every gathered sample as "name{labels} value".
func writeStats(w io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			name := mf.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}
			var value float64
			switch {
			case m.GetCounter() != nil:
				value = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				value = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				value = float64(m.GetHistogram().GetSampleCount())
			default:
				continue
			}
			fmt.Fprintf(w, "%s %s\n", name, strconv.FormatFloat(value, 'g', -1, 64))
		}
	}
	return nil
}
