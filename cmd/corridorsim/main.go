package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

func main() {
	format := flag.String("format", "text", "output format: text or json")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: corridorsim [-format text|json] scenario.yaml")
		os.Exit(2)
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		fmt.Println("ERROR opening scenario:", err)
		os.Exit(1)
	}
	sc, err := ParseScenario(f)
	f.Close()
	if err != nil {
		fmt.Println("ERROR parsing scenario:", err)
		os.Exit(1)
	}

	out, err := Run(context.Background(), sc, logger)
	if err != nil {
		fmt.Println("ERROR running scenario:", err)
		os.Exit(1)
	}

	switch *format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(out)
	default:
		printText(os.Stdout, out)
	}
}

func printText(w io.Writer, out Outcome) {
	fmt.Fprintf(w, "Admissions: %d\n", len(out.Admissions))
	for _, a := range out.Admissions {
		if a.Error != "" {
			fmt.Fprintf(w, "  desired=%s REJECTED %s\n", a.Desired.Format(time.RFC3339), a.Error)
			continue
		}
		fmt.Fprintf(w, "  airplane %d: desired=%s departure=%s shifts=%d\n",
			a.ID, a.Desired.Format(time.RFC3339), a.Departure.Format(time.RFC3339), a.Shifts)
	}

	for _, snap := range out.Ticks {
		fmt.Fprintf(w, "t=%s\n", snap.Timestamp.Format(time.RFC3339))
		for _, p := range snap.Positions {
			if p.Airborne {
				fmt.Fprintf(w, "    airplane %d: %.3f\n", p.ID, p.Position)
			} else {
				fmt.Fprintf(w, "    airplane %d: grounded\n", p.ID)
			}
		}
	}

	occupied := 0
	for _, c := range out.Grid {
		if len(c.Airplanes) > 0 {
			fmt.Fprintf(w, "  cell %.3f: %v\n", c.Coordinate, c.Airplanes)
			occupied++
		}
	}
	fmt.Fprintf(w, "\nOccupied cells: %d, outside bounds: %v\n", occupied, out.Outside)
}
