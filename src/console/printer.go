// Package console renders stream traffic and summaries for terminal tools.
package console

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"trading-console/src/events"
	"trading-console/src/models"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Printer writes one line per envelope and counts what it saw. It is a stream.Observer.
type Printer struct {
	out    io.Writer
	color  bool
	mu     sync.Mutex
	counts map[events.Kind]int
}

func NewPrinter(w io.Writer, color bool) *Printer {
	return &Printer{out: w, color: color, counts: make(map[events.Kind]int)}
}

// -----------------------------------------------------------------------------

func (p *Printer) Observe(env events.Envelope) {
	line := FormatEnvelope(env)
	if p.color {
		line = kindColor(env).Sprint(line)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[env.Kind]++
	fmt.Fprintln(p.out, line)
}

// Counts returns how many envelopes of each kind were printed
func (p *Printer) Counts() map[events.Kind]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[events.Kind]int, len(p.counts))
	for k, v := range p.counts {
		out[k] = v
	}
	return out
}

// -----------------------------------------------------------------------------

// FormatEnvelope renders env as "HH:MM:SS.mmm kind details"
func FormatEnvelope(env events.Envelope) string {
	ts := time.UnixMilli(env.Timestamp).UTC().Format("15:04:05.000")

	var detail string
	switch p := env.Payload.(type) {
	case events.CandleTick:
		c := p.Candle
		detail = fmt.Sprintf("%s %s t=%d O=%.2f H=%.2f L=%.2f C=%.2f V=%d",
			p.InstrumentID, p.Timeframe, c.Time, c.Open, c.High, c.Low, c.Close, c.Volume)
	case events.SignalPayload:
		detail = fmt.Sprintf("%s %s %s entry=%.2f sl=%.2f tp=%.2f [%s]",
			p.ID, p.Side, p.InstrumentID, p.Entry, p.SL, p.TP, p.Status)
	case events.StatusPayload:
		detail = fmt.Sprintf("running=%v mode=%s md=%s broker=%s",
			p.IsRunning, p.Mode, p.Connection.MarketData, p.Connection.Broker)
		if p.Session != nil {
			detail += fmt.Sprintf(" %s open=%v", p.Session.Market, p.Session.IsOpen)
		}
	case events.RawPayload:
		detail = truncate(string(p), 120)
	}
	return fmt.Sprintf("%s %-17s %s", ts, env.Kind, detail)
}

func kindColor(env events.Envelope) text.Colors {
	switch env.Kind {
	case events.KindSignalCreated, events.KindSignalUpdated:
		if s, ok := env.Signal(); ok && s.Side == models.SideSell {
			return text.Colors{text.FgRed}
		}
		return text.Colors{text.FgGreen}
	case events.KindBotStatus:
		return text.Colors{text.FgHiBlack}
	case events.KindTradeFilled, events.KindPositionsChanged, events.KindOrdersChanged:
		return text.Colors{text.FgYellow}
	}
	return text.Colors{}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// -----------------------------------------------------------------------------
// Tables
// -----------------------------------------------------------------------------

// RenderCounts writes an event count table, kinds in their canonical order
func RenderCounts(w io.Writer, counts map[events.Kind]int) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Kind", "Events"})

	total := 0
	for _, k := range events.Kinds() {
		t.AppendRow(table.Row{k, counts[k]})
		total += counts[k]
	}
	t.AppendFooter(table.Row{"Total", total})
	t.Render()
}

// RenderSeries writes one row per series summary
func RenderSeries(w io.Writer, stats []models.MSeriesStats) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Series", "Bars", "Open", "Last", "High", "Low", "Change %", "Z", "Volume"})
	for _, s := range stats {
		t.AppendRow(table.Row{
			s.Instrument + "@" + s.Timeframe,
			s.Count,
			fmt.Sprintf("%.2f", s.Open),
			fmt.Sprintf("%.2f", s.Last),
			fmt.Sprintf("%.2f", s.High),
			fmt.Sprintf("%.2f", s.Low),
			fmt.Sprintf("%+.2f", s.ChangePct),
			fmt.Sprintf("%.2f", s.ZScore),
			s.TotalVolume,
		})
	}
	t.Render()
}

// RenderFields writes a two-column key/value table with keys sorted
func RenderFields(w io.Writer, title string, fields map[string]interface{}) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	for _, k := range keys {
		t.AppendRow(table.Row{k, fields[k]})
	}
	t.Render()
}
