// Command checkmsg decodes raw Swarm payloads against the station
// registry and reports what each one would contribute to the raw tier.
// Field techs paste payloads straight from the Hive console to confirm a
// station's datalogger program matches its registry layout.
//
// Payloads are read one per line from the given files, or stdin when no
// file is named. Lines starting with # are skipped.
//
// Usage:
//
//	go run ./cmd/checkmsg payloads.txt
//	pbpaste | go run ./cmd/checkmsg -stations stations.yaml
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/viu-hydromet/wx-ingest/internal/domain"
	"github.com/viu-hydromet/wx-ingest/internal/station"
)

func main() {
	stationsFile := flag.String("stations", "", "stations YAML file (default: built-in registry)")
	flag.Parse()

	stations, err := station.Load(*stationsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load stations: %v\n", err)
		os.Exit(1)
	}

	payloads, err := readPayloads(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read payloads: %v\n", err)
		os.Exit(1)
	}
	if len(payloads) == 0 {
		fmt.Fprintln(os.Stderr, "no payloads to check")
		os.Exit(1)
	}

	if failures := check(os.Stdout, stations, payloads); failures > 0 {
		fmt.Printf("\n%d of %d payloads FAILED.\n", failures, len(payloads))
		os.Exit(1)
	}
	fmt.Printf("\nAll %d payloads decoded.\n", len(payloads))
}

func readPayloads(paths []string) ([]string, error) {
	if len(paths) == 0 {
		return scanLines(os.Stdin)
	}
	var all []string
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		lines, err := scanLines(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		all = append(all, lines...)
	}
	return all, nil
}

func scanLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, sc.Err()
}

// check decodes every payload against every station and prints one
// verdict per payload. A payload that no station claims, or that its
// station rejects, counts as a failure.
func check(w io.Writer, stations []station.Station, payloads []string) int {
	failures := 0
	for i, payload := range payloads {
		verdict := decodeAgainstRegistry(stations, payload)
		if !verdict.ok {
			failures++
		}
		fmt.Fprintf(w, "[%d] %s\n", i+1, verdict.summary)
		for _, d := range verdict.details {
			fmt.Fprintf(w, "      %s\n", d)
		}
	}
	return failures
}

type verdict struct {
	ok      bool
	summary string
	details []string
}

func decodeAgainstRegistry(stations []station.Station, payload string) verdict {
	msg := domain.RawMessage{Payload: payload}
	for _, st := range stations {
		records, err := domain.Decode(msg, st.ID, st.Layout)
		if err != nil {
			return verdict{
				summary: fmt.Sprintf("\033[31mFAIL\033[0m station=%s: %v", st.ID, err),
			}
		}
		if len(records) == 0 {
			continue
		}
		return verdict{
			ok:      true,
			summary: fmt.Sprintf("\033[32mOK\033[0m   station=%s readings=%d", st.ID, len(records)),
			details: describeRecords(st, records),
		}
	}
	return verdict{
		summary: fmt.Sprintf("\033[31mFAIL\033[0m no station claims payload (%d fields)",
			len(strings.Split(payload, ","))),
	}
}

func describeRecords(st station.Station, records []domain.Record) []string {
	details := make([]string, len(records))
	for i, rec := range records {
		nulls := 0
		for _, name := range st.Layout.FieldNames {
			if _, ok := rec.Fields[name]; !ok {
				nulls++
			}
		}
		detail := fmt.Sprintf("%s water_year=%d values=%d",
			rec.Time.Format(time.RFC3339), domain.WaterYear(rec.Time), len(rec.Fields))
		if nulls > 0 {
			detail += fmt.Sprintf(" nulls=%d", nulls)
		}
		details[i] = detail
	}
	return details
}
