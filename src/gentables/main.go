package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jinjor/desktop-synth/src/dsp"
)

var sizes = flag.String("sizes", "1024,2048,4096", "comma separated table sizes")
var seed = flag.Int64("seed", 1, "seed of the noise table")

func main() {
	flag.Parse()
	dir := flag.Arg(0)
	if dir == "" {
		panic("dir is not passed")
	}
	log.SetFlags(log.Lshortfile)

	ns, err := parseSizes(*sizes)
	if err != nil {
		log.Fatalf("error: %v\n", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Fatalf("error: %v\n", err)
	}
	g, _ := errgroup.WithContext(context.Background())
	for _, n := range ns {
		n := n
		g.Go(func() error {
			wts, err := dsp.NewWavetables(n, *seed)
			if err != nil {
				return err
			}
			log.Printf("generated %d samples\n", n)
			path := filepath.Join(dir, fmt.Sprintf("wavetables-%d.wt", n))
			if err := save(path, wts); err != nil {
				return err
			}
			log.Printf("saved %s\n", path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("error: %v\n", err)
	}
	log.Println("Successfully generated wavetables.")
}

func parseSizes(s string) ([]int, error) {
	var ns []int
	for _, item := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(item))
		if err != nil {
			return nil, fmt.Errorf("invalid size %q: %w", item, err)
		}
		ns = append(ns, n)
	}
	return ns, nil
}

func save(path string, wts *dsp.Wavetables) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := wts.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
