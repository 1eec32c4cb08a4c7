package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/delaneyj/pumpkin/reactive"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
)

const (
	repeatsKey = "repeats"
	onlyKey    = "only"
)

var perfTestCfgs = []benchmarkTestConfig{
	{
		name:           "simple component",
		width:          10,
		staticFraction: 1,
		nSources:       2,
		totalLayers:    5,
		readFraction:   0.2,
		iterations:     600000,
	},
	{
		name:           "dynamic component",
		width:          10,
		totalLayers:    10,
		staticFraction: 0.75,
		nSources:       6,
		readFraction:   0.2,
		iterations:     15000,
	},
	{
		name:           "large web app",
		width:          1000,
		totalLayers:    12,
		staticFraction: 0.95,
		nSources:       4,
		readFraction:   1,
		iterations:     7000,
	},
	{
		name:           "wide dense",
		width:          1000,
		totalLayers:    5,
		staticFraction: 1,
		nSources:       25,
		readFraction:   1,
		iterations:     3000,
	},
	{
		name:           "deep",
		width:          5,
		totalLayers:    500,
		staticFraction: 1,
		nSources:       3,
		readFraction:   1,
		iterations:     500,
	},
	{
		name:           "very dynamic",
		width:          100,
		totalLayers:    15,
		staticFraction: 0.5,
		nSources:       6,
		readFraction:   1,
		iterations:     2000,
	},
}

func main() {
	cmd := &cli.Command{
		Name:  "benchmark_dynamic",
		Usage: "Push writes through layered graphs of effects with static and dynamic dependencies",
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:  repeatsKey,
				Usage: "Timed runs per config; the fastest is reported",
				Value: 5,
			},
			&cli.StringFlag{
				Name:  onlyKey,
				Usage: "Run only the config with this name",
			},
		},
		Action: run,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

type results struct {
	sum      int
	count    int64
	checksum uint64
	duration time.Duration
}

func run(ctx context.Context, cmd *cli.Command) error {
	log.Print("Starting dynamic graph benchmark, please wait...")
	defer log.Print("Finished dynamic graph benchmark")

	testRepeats := int(cmd.Uint(repeatsKey))
	only := cmd.String(onlyKey)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{
		"size", "nSources", "read%", "static%", "dynamic",
		"nTimes", "test", "time", "runs", "updateRate", "sum", "checksum", "title",
	})

	for _, cfg := range perfTestCfgs {
		if only != "" && only != cfg.name {
			continue
		}
		log.Printf("Running '%s' config", cfg.name)

		bestResult := &results{duration: time.Hour}
		var dynamicNodes int
		for i := 0; i <= testRepeats; i++ {
			counter := new(int64)
			graph, err := benchmarkMakeGraph(&benchmarkMakeGraphConfig{
				counter:        counter,
				width:          cfg.width,
				totalLayers:    cfg.totalLayers,
				nSources:       cfg.nSources,
				staticFraction: cfg.staticFraction,
			})
			if err != nil {
				return fmt.Errorf("%s: %w", cfg.name, err)
			}
			dynamicNodes = graph.dynamicNodes
			*counter = 0

			start := time.Now()
			sum, checksum, err := benchmarkRunGraph(&benchmarkRunGraphConfig{
				graph:        graph,
				iteration:    cfg.iterations,
				readFraction: cfg.readFraction,
			})
			duration := time.Since(start)
			if err != nil {
				return fmt.Errorf("%s: %w", cfg.name, err)
			}

			// the first run only warms up
			if i == 0 {
				continue
			}
			log.Printf("Running '%s' config, iteration %d/%d %d%%", cfg.name, i, testRepeats, i*100/testRepeats)
			if duration < bestResult.duration {
				bestResult.duration = duration
				bestResult.sum = sum
				bestResult.count = *counter
				bestResult.checksum = checksum
			}
		}

		makeTitle := func() string {
			sb := strings.Builder{}
			sb.WriteString(fmt.Sprintf("%dx%d %d sources", cfg.width, cfg.totalLayers, cfg.nSources))
			if cfg.staticFraction < 1 {
				sb.WriteString(" dynamic")
			}
			if cfg.readFraction < 1 {
				sb.WriteString(fmt.Sprintf(" read %0.2f%%", 100*cfg.readFraction))
			}
			return sb.String()
		}

		updateRate := float64(bestResult.count) / (float64(bestResult.duration) / float64(time.Millisecond))

		table.Append([]string{
			fmt.Sprintf("%dx%d", cfg.width, cfg.totalLayers),
			fmt.Sprint(cfg.nSources),
			fmt.Sprint(cfg.readFraction),
			fmt.Sprint(cfg.staticFraction),
			humanize.Comma(int64(dynamicNodes)),
			humanize.Comma(cfg.iterations),
			cfg.name,
			fmt.Sprint(bestResult.duration),
			humanize.Comma(bestResult.count),
			humanize.Comma(int64(updateRate)),
			fmt.Sprint(bestResult.sum),
			fmt.Sprintf("%016x", bestResult.checksum),
			makeTitle(),
		})
	}
	table.Render()
	return nil
}

type benchmarkTestConfig struct {
	name           string  // friendly name for the test, should be unique
	width          int64   // width of dependency graph to construct
	totalLayers    int64   // depth of dependency graph to construct
	staticFraction float64 // fraction of nodes that always read all their sources
	nSources       int64   // construct a graph with number of sources in each node
	readFraction   float64 // fraction of [0, 1] elements in the last layer from which to read values in each test iteration
	iterations     int64   // number of test iterations
}

// Every node is a cell written by the effect that computes it, so a write to
// a source settles one layer per flush pass.
type benchmarkGraph struct {
	sys          *reactive.System
	sources      []*reactive.Signal[int]
	layers       [][]*reactive.Signal[int]
	dynamicNodes int
}

type benchmarkMakeGraphConfig struct {
	counter                      *int64
	width, totalLayers, nSources int64
	staticFraction               float64
}

func benchmarkMakeGraph(cfg *benchmarkMakeGraphConfig) (*benchmarkGraph, error) {
	sys := reactive.New(reactive.WithFlushLimit(int(cfg.totalLayers) + 2))
	sources := make([]*reactive.Signal[int], cfg.width)
	for i := range sources {
		sources[i] = reactive.NewSignal(sys, i)
	}

	graph := &benchmarkGraph{sys: sys, sources: sources}
	prevRow := sources
	random := rand.New(rand.NewSource(0))
	for l := int64(0); l < cfg.totalLayers-1; l++ {
		row, dynamic, err := makeBenchmarkRow(&benchmarkRowConfig{
			sys:            sys,
			sources:        prevRow,
			counter:        cfg.counter,
			staticFraction: cfg.staticFraction,
			nSources:       cfg.nSources,
			rand:           random,
		})
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", l, err)
		}
		graph.layers = append(graph.layers, row)
		graph.dynamicNodes += dynamic
		prevRow = row
	}
	return graph, nil
}

type benchmarkRunGraphConfig struct {
	graph        *benchmarkGraph
	iteration    int64
	readFraction float64
}

// benchmarkRunGraph writes one source per iteration, lets the graph settle
// and reads some or all of the leaves. It returns the final sum of the read
// leaves and a checksum over every value read along the way.
func benchmarkRunGraph(cfg *benchmarkRunGraphConfig) (sum int, checksum uint64, err error) {
	random := rand.New(rand.NewSource(0))
	leaves := cfg.graph.layers[len(cfg.graph.layers)-1]
	skipCount := int(math.Round(float64(len(leaves)) * (1 - cfg.readFraction)))
	readLeaves := benchmarkRemoveElems(leaves, skipCount, random)

	digest := xxhash.New()
	var buf [8]byte
	sys := cfg.graph.sys
	for i := 0; i < int(cfg.iteration); i++ {
		sourceDex := i % len(cfg.graph.sources)
		cfg.graph.sources[sourceDex].Set(i + sourceDex)
		if err := sys.RunUntilIdle(); err != nil {
			return 0, 0, err
		}

		for _, leaf := range readLeaves {
			binary.LittleEndian.PutUint64(buf[:], uint64(leaf.Peek()))
			digest.Write(buf[:])
		}
	}

	for _, leaf := range readLeaves {
		sum += leaf.Peek()
	}
	return sum, digest.Sum64(), nil
}

func benchmarkRemoveElems[T comparable](src []T, rmCount int, rand *rand.Rand) []T {
	copyWithRemovals := make([]T, len(src))
	copy(copyWithRemovals, src)
	for i := 0; i < rmCount; i++ {
		rmDex := rand.Intn(len(copyWithRemovals))
		copyWithRemovals[rmDex] = copyWithRemovals[len(copyWithRemovals)-1]
		copyWithRemovals = copyWithRemovals[:len(copyWithRemovals)-1]
	}
	return copyWithRemovals
}

type benchmarkRowConfig struct {
	sys            *reactive.System
	sources        []*reactive.Signal[int]
	counter        *int64
	staticFraction float64
	nSources       int64
	rand           *rand.Rand
}

func makeBenchmarkRow(cfg *benchmarkRowConfig) (row []*reactive.Signal[int], dynamic int, err error) {
	row = make([]*reactive.Signal[int], len(cfg.sources))

	for myDex := range cfg.sources {
		mySources := make([]*reactive.Signal[int], 0, cfg.nSources)
		for sourceDex := 0; sourceDex < int(cfg.nSources); sourceDex++ {
			x := (myDex + sourceDex) % len(cfg.sources)
			mySources = append(mySources, cfg.sources[x])
		}

		cell := reactive.NewSignal(cfg.sys, 0)
		row[myDex] = cell

		var body func() error
		if cfg.rand.Float64() < cfg.staticFraction {
			body = func() error {
				*cfg.counter++
				sum := 0
				for _, source := range mySources {
					sum += source.Get()
				}
				cell.Set(sum)
				return nil
			}
		} else {
			// which sources are read depends on the first one's value
			first := mySources[0]
			tail := mySources[1:]
			body = func() error {
				*cfg.counter++
				sum := first.Get()
				shouldDrop := sum&0x1 > 0
				dropDex := 0
				if len(tail) > 0 {
					dropDex = sum % len(tail)
				}
				for i := 0; i < len(tail); i++ {
					if shouldDrop && i == dropDex {
						continue
					}
					sum += tail[i].Get()
				}
				cell.Set(sum)
				return nil
			}
			dynamic++
		}

		if _, err := reactive.NewEffect(cfg.sys, body); err != nil {
			return nil, 0, err
		}
	}

	return row, dynamic, nil
}
