package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime/pprof"
	"time"

	"github.com/delaneyj/pumpkin/reactive"
	"github.com/delaneyj/pumpkin/reactivemetrics"
	"github.com/dustin/go-humanize"
	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/urfave/cli/v3"
)

const (
	widthKey      = "width"
	heightKey     = "height"
	itersKey      = "iters"
	metricsKey    = "metrics"
	cpuProfileKey = "cpuprofile"
)

func main() {
	cmd := &cli.Command{
		Name:  "benchmark",
		Usage: "Time propagation through chains of effects",
		Flags: []cli.Flag{
			&cli.IntSliceFlag{
				Name:  widthKey,
				Usage: "Number of independent chains hanging off the source",
				Value: []int64{1, 10, 100, 1_000},
			},
			&cli.IntSliceFlag{
				Name:  heightKey,
				Usage: "Number of hops in each chain",
				Value: []int64{1, 10, 100, 1_000},
			},
			&cli.UintFlag{
				Name:  itersKey,
				Usage: "Writes to time per graph",
				Value: 100,
			},
			&cli.BoolFlag{
				Name:  metricsKey,
				Usage: "Print the engine counters gathered after each graph",
			},
			&cli.StringFlag{
				Name:  cpuProfileKey,
				Usage: "Write a CPU profile to this file",
			},
		},
		Action: run,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	if path := cmd.String(cpuProfileKey); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return err
		}
		defer pprof.StopCPUProfile()
	}

	iters := int(cmd.Uint(itersKey))
	showMetrics := cmd.Bool(metricsKey)

	log.Printf("warming up")
	if _, err := propagate(10, 10, iters); err != nil {
		return err
	}

	tbl := table.NewWriter()
	tbl.SetTitle("🎃 Signals")
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"benchmark", "avg", "min", "p75", "p99", "max", "effect runs"})

	metricsTbl := table.NewWriter()
	metricsTbl.SetTitle("Engine counters")
	metricsTbl.SetOutputMirror(os.Stdout)
	metricsTbl.AppendHeader(table.Row{"graph", "metric", "value"})

	for _, w := range cmd.IntSlice(widthKey) {
		for _, h := range cmd.IntSlice(heightKey) {
			res, err := propagate(int(w), int(h), iters)
			if err != nil {
				return err
			}
			name := fmt.Sprintf("propagate: %d * %d", w, h)

			calc := res.tach.Calc()
			tbl.AppendRow(table.Row{
				name,
				calc.Time.Avg,
				calc.Time.Min,
				calc.Time.P75,
				calc.Time.P99,
				calc.Time.Max,
				humanize.Comma(int64(res.sys.Stats().EffectRuns)),
			})

			if showMetrics {
				rows, err := gather(res.sys)
				if err != nil {
					return err
				}
				for _, row := range rows {
					metricsTbl.AppendRow(append(table.Row{name}, row...))
				}
				metricsTbl.AppendSeparator()
			}
		}
	}

	tbl.Render()
	if showMetrics {
		metricsTbl.Render()
	}
	return nil
}

type result struct {
	sys  *reactive.System
	tach *tachymeter.Tachymeter
}

// propagate builds w chains of h effects, each copying the previous cell
// plus one into its own cell, with a sink effect at the end of every chain.
// Each write to the source is timed until every chain has settled.
func propagate(w, h, iters int) (*result, error) {
	sys := reactive.New(reactive.WithFlushLimit(h + 2))
	src := reactive.NewSignal(sys, 1)

	for i := 0; i < w; i++ {
		last := src
		for j := 0; j < h; j++ {
			prev, next := last, reactive.NewSignal(sys, 0)
			if _, err := reactive.NewEffect(sys, func() error {
				next.Set(prev.Get() + 1)
				return nil
			}); err != nil {
				return nil, err
			}
			last = next
		}

		sink := last
		if _, err := reactive.NewEffect(sys, func() error {
			sink.Get()
			return nil
		}); err != nil {
			return nil, err
		}
	}

	tach := tachymeter.New(&tachymeter.Config{Size: iters})
	for i := 0; i < iters; i++ {
		start := time.Now()
		src.Update(func(v int) int { return v + 1 })
		if err := sys.RunUntilIdle(); err != nil {
			return nil, err
		}
		tach.AddTime(time.Since(start))
	}

	return &result{sys: sys, tach: tach}, nil
}

func gather(sys *reactive.System) ([]table.Row, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(reactivemetrics.NewCollector("pumpkin", sys)); err != nil {
		return nil, err
	}
	families, err := reg.Gather()
	if err != nil {
		return nil, err
	}

	rows := make([]table.Row, 0, len(families))
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			rows = append(rows, table.Row{mf.GetName(), humanize.Comma(int64(metricValue(mf.GetType(), m)))})
		}
	}
	return rows, nil
}

func metricValue(typ dto.MetricType, m *dto.Metric) float64 {
	switch typ {
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue()
	default:
		return 0
	}
}
