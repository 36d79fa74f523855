// Command relaysim runs a local stand-in for the Swarm Hive relay. It
// synthesizes plausible station messages from the registry layouts and
// serves them over the same login-then-fetch API the ingest service
// speaks, so the full pipeline can run without satellite credentials.
//
// Usage:
//
//	go run ./cmd/relaysim -addr :9090 -hours 48
//	SWARM_BASE_URL=http://localhost:9090 SWARM_USERNAME=dev SWARM_PASSWORD=dev \
//	  go run ./cmd/ingest
package main

import (
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/viu-hydromet/wx-ingest/internal/domain"
	"github.com/viu-hydromet/wx-ingest/internal/station"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	addr := flag.String("addr", ":9090", "listen address")
	stationsFile := flag.String("stations", "", "stations YAML file (default: built-in registry)")
	hours := flag.Int("hours", 48, "hours of history to synthesize, ending now")
	seed := flag.Int64("seed", 1, "value generator seed, for reproducible runs")
	flag.Parse()

	stations, err := station.Load(*stationsFile)
	if err != nil {
		return fmt.Errorf("load stations: %w", err)
	}

	end := time.Now().UTC().Truncate(time.Hour)
	start := end.Add(-time.Duration(*hours) * time.Hour)

	var msgs []hiveMessage
	rng := rand.New(rand.NewSource(*seed))
	for _, st := range stations {
		generated := generate(st, start, end, rng)
		log.Printf("%s: %d messages", st.ID, len(generated))
		msgs = append(msgs, generated...)
	}

	// Hive serves newest first.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	log.Printf("serving %d messages on %s", len(msgs), *addr)
	return http.ListenAndServe(*addr, newHandler(msgs))
}

// hiveMessage mirrors the relay's wire shape.
type hiveMessage struct {
	PacketID   int64  `json:"packetId"`
	Data       string `json:"data"`
	HiveRxTime string `json:"hiveRxTime"`
}

// generate synthesizes one message per reading slot between start and
// end. Dual-reading stations pack two consecutive hours per message and
// encode the midnight reading under the previous day, as the field
// dataloggers do.
func generate(st station.Station, start, end time.Time, rng *rand.Rand) []hiveMessage {
	var msgs []hiveMessage
	step := time.Duration(len(st.Layout.Readings)) * time.Hour
	if step == 2*time.Hour && start.Hour()%2 == 0 {
		// Align pairs to odd hours so the day's last message carries
		// (23h, midnight), matching the datalogger transmission schedule.
		start = start.Add(time.Hour)
	}
	for t := start; t.Before(end); t = t.Add(step) {
		msgs = append(msgs, hiveMessage{
			PacketID:   rng.Int63n(1 << 40),
			Data:       base64.StdEncoding.EncodeToString([]byte(render(st.Layout, t, rng))),
			HiveRxTime: t.Add(step + 10*time.Minute).Format("2006-01-02T15:04:05"),
		})
	}
	return msgs
}

// render builds one comma-separated payload whose first reading lands at
// t.
func render(layout domain.Layout, t time.Time, rng *rand.Rand) string {
	fields := make([]string, layout.Arity)
	for i := range fields {
		fields[i] = "0"
	}
	if layout.Label != "" {
		fields[0] = layout.Label
	}

	for i, rd := range layout.Readings {
		rt := t.Add(time.Duration(i) * time.Hour)
		hour := strconv.Itoa(rt.Hour()) + layout.HourSuffix
		if i > 0 && rt.Hour() == 0 && layout.MidnightMarker != "" {
			// Midnight reading: previous day's date, marker hour.
			rt = rt.AddDate(0, 0, -1)
			hour = layout.MidnightMarker
		}
		if i == 0 {
			fields[layout.YearCol] = strconv.Itoa(rt.Year())
			fields[layout.MonthCol] = strconv.Itoa(int(rt.Month()))
			fields[layout.DayCol] = strconv.Itoa(rt.Day())
		}
		fields[rd.HourCol] = hour
		for j := range layout.FieldNames {
			fields[rd.ValueStart+j] = fmt.Sprintf("%.2f", rng.Float64()*20)
		}
	}
	return strings.Join(fields, ",")
}

// newHandler serves the two Hive endpoints the ingest client uses. Any
// credentials are accepted; the session cookie is still required so the
// client's login flow gets exercised.
func newHandler(msgs []hiveMessage) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("username") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "relaysim"})
	})

	mux.HandleFunc("GET /api/v1/messages", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("JSESSIONID"); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		count := len(msgs)
		if v := r.URL.Query().Get("count"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n < count {
				count = n
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(msgs[:count]) //nolint:errcheck // best-effort simulator response
	})

	return mux
}
