// Command efdump builds an Elias-Fano index from a list of integers
// and reports on it: its element count, its size in bits, and (for the
// ef layout only) its compression ratio. With --out it also writes the
// serialized index to a file; it does not read the file back.
package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/efcodec/ef"
	"github.com/efcodec/ef/internal/mlef"
	"github.com/efcodec/ef/internal/upef"
)

func main() {
	app := &cli.App{
		Name:        "efdump",
		Description: "Build an Elias-Fano index from a sequence of integers and report on it",
		Flags: []cli.Flag{
			FlagVerbose,
		},
		Commands: []*cli.Command{
			newCmdBuild(),
		},
	}

	sort.Sort(cli.CommandsByName(app.Commands))

	if err := app.Run(os.Args); err != nil {
		klog.Fatal(err)
	}
}

var FlagVerbose = &cli.BoolFlag{
	Name:  "verbose",
	Usage: "enable verbose logging",
}

func newCmdBuild() *cli.Command {
	return &cli.Command{
		Name:      "build",
		Usage:     "read integers (one per line) and build an index over them",
		ArgsUsage: "[file]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "layout",
				Usage: "index layout: ef, upef, or mlef",
				Value: "ef",
			},
			&cli.UintFlag{
				Name:  "chunk-size",
				Usage: "chunk size for the upef layout",
				Value: 256,
			},
			&cli.UintFlag{
				Name:  "depth",
				Usage: "recursion depth for the mlef layout",
				Value: 2,
			},
			&cli.StringFlag{
				Name:  "out",
				Usage: "write the serialized index to this file instead of just reporting on it",
			},
		},
		Action: func(c *cli.Context) error {
			values, err := readIntegers(c.Args().First())
			if err != nil {
				return fmt.Errorf("efdump: reading input: %w", err)
			}
			if c.Bool("verbose") {
				klog.Infof("read %d integers", len(values))
			}
			return buildAndReport(c, values)
		},
	}
}

func readIntegers(path string) ([]uint64, error) {
	var in *os.File
	if path == "" || path == "-" {
		in = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		in = f
	}

	var values []uint64
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		v, err := strconv.ParseUint(line, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", line, err)
		}
		values = append(values, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	return values, nil
}

func buildAndReport(c *cli.Context, values []uint64) error {
	layout := c.String("layout")

	var bitLength int
	var writeTo func(f *os.File) error

	switch layout {
	case "ef":
		e, err := ef.New(values)
		if err != nil {
			return err
		}
		bitLength = e.BitLength()
		fmt.Printf("compression_ratio: %.3f\n", e.CompressionRatio())
		writeTo = func(f *os.File) error { _, err := e.WriteTo(f); return err }
	case "upef":
		u, err := upef.New(values, c.Uint("chunk-size"))
		if err != nil {
			return err
		}
		bitLength = u.BitLength()
		writeTo = func(f *os.File) error { _, err := u.WriteTo(f); return err }
	case "mlef":
		m, err := mlef.New(values, c.Uint("depth"))
		if err != nil {
			return err
		}
		bitLength = m.BitLength()
		writeTo = func(f *os.File) error { _, err := m.WriteTo(f); return err }
	default:
		return fmt.Errorf("efdump: unknown layout %q", layout)
	}

	fmt.Printf("n: %d\n", len(values))
	fmt.Printf("bit_length: %d\n", bitLength)

	if out := c.String("out"); out != "" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := writeTo(f); err != nil {
			return fmt.Errorf("efdump: writing %s: %w", out, err)
		}
	}
	return nil
}
