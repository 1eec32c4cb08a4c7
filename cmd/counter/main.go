package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/delaneyj/pumpkin/eventloop"
	"github.com/delaneyj/pumpkin/reactive"
	"github.com/urfave/cli/v3"
)

const startKey = "start"

func main() {
	cmd := &cli.Command{
		Name:  "counter",
		Usage: "Read +, - or =N from stdin and print the counter as it changes",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  startKey,
				Usage: "Initial counter value",
			},
		},
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	loop := eventloop.New(eventloop.WithLogger(logger))

	loopErr := make(chan error, 1)
	go func() {
		loopErr <- loop.Run(ctx)
	}()
	defer loop.Stop()

	var count *reactive.Signal[int64]
	if err := loop.Do(ctx, func() error {
		sys := reactive.New(reactive.WithScheduler(loop), reactive.WithLogger(logger))
		count = reactive.NewSignal(sys, cmd.Int(startKey))
		_, err := reactive.NewEffect(sys, func() error {
			_, err := fmt.Fprintf(os.Stdout, "count: %d\n", count.Get())
			return err
		})
		return err
	}); err != nil {
		return err
	}

	if err := feed(ctx, os.Stdin, func(line string) error {
		update, err := parseCommand(line)
		if err != nil {
			logger.Warn("ignoring input", slog.String("line", line), slog.Any("err", err))
			return nil
		}
		return loop.Submit(func() { count.Update(update) })
	}); err != nil {
		return err
	}

	// let queued commands settle before exiting
	if err := loop.Do(ctx, func() error { return nil }); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	loop.Stop()
	if err := <-loopErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func feed(ctx context.Context, r io.Reader, handle func(string) error) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := handle(line); err != nil {
			if errors.Is(err, eventloop.ErrLoopTerminated) {
				return nil
			}
			return err
		}
	}
	return scanner.Err()
}

func parseCommand(line string) (func(int64) int64, error) {
	switch {
	case line == "+":
		return func(v int64) int64 { return v + 1 }, nil
	case line == "-":
		return func(v int64) int64 { return v - 1 }, nil
	case strings.HasPrefix(line, "="):
		n, err := strconv.ParseInt(strings.TrimSpace(line[1:]), 10, 64)
		if err != nil {
			return nil, err
		}
		return func(int64) int64 { return n }, nil
	default:
		return nil, fmt.Errorf("unknown command %q", line)
	}
}
