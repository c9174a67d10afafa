package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"dvsorder/internal/prng"
)

func runShuffle(args []string) error {
	fs := flag.NewFlagSet("shuffle", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	generator := fs.String("generator", "dotnet", "generator name")
	seed := fs.Int64("seed", 0, "generator seed")
	length := fs.Int("length", 0, "batch length")
	base := fs.Int64("base", 1, "first record id")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("usage: dvsorder shuffle --generator NAME --seed N --length N [--base ID]: %w", err)
	}
	if *length <= 0 {
		return fmt.Errorf("usage: dvsorder shuffle --generator NAME --seed N --length N [--base ID]")
	}

	model, err := prng.Lookup(*generator)
	if err != nil {
		return err
	}
	lo, hi := model.SeedRange()
	if *seed < lo || *seed > hi {
		return fmt.Errorf("seed %d outside the %s seed range [%d, %d]", *seed, model.Name(), lo, hi)
	}

	perm := prng.Shuffle(model, *seed, *length)
	ids := make([]int64, *length)
	for i := range ids {
		ids[i] = *base + int64(i)
	}
	fmt.Fprintf(stdout, "permutation: %s\n", joinInts(perm))
	fmt.Fprintf(stdout, "record ids:  %s\n", joinInts(prng.Apply(perm, ids)))
	return nil
}

func joinInts[T int | int64](xs []T) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, " ")
}
