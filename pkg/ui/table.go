package ui

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/shaneisley/courtside/pkg/cache"
	"github.com/shaneisley/courtside/pkg/endpoints"
	"github.com/shaneisley/courtside/pkg/history"
	"github.com/shaneisley/courtside/pkg/payload"
)

// RenderResultSet renders one result set as a table. maxRows <= 0 renders
// every row.
func RenderResultSet(rs payload.ResultSet, maxRows int) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	if rs.Name != "" {
		t.SetTitle(rs.Name)
	}

	header := make(table.Row, len(rs.Headers))
	for i, h := range rs.Headers {
		header[i] = h
	}
	t.AppendHeader(header)

	shown := len(rs.RowSet)
	if maxRows > 0 && shown > maxRows {
		shown = maxRows
	}
	for _, row := range rs.RowSet[:shown] {
		out := make(table.Row, len(row))
		for i, v := range row {
			if v == nil {
				out[i] = ""
				continue
			}
			out[i] = v
		}
		t.AppendRow(out)
	}

	if shown < len(rs.RowSet) {
		footer := make(table.Row, len(rs.Headers))
		if len(footer) > 0 {
			footer[0] = fmt.Sprintf("%d of %d rows", shown, len(rs.RowSet))
		}
		t.AppendFooter(footer)
	}

	return t.Render()
}

// RenderPayload renders every result set, separated by blank lines
func RenderPayload(p *payload.Payload, maxRows int) string {
	var rendered string
	for i, rs := range p.ResultSets {
		if i > 0 {
			rendered += "\n\n"
		}
		rendered += RenderResultSet(rs, maxRows)
	}
	return rendered
}

// RenderOperations lists the catalog
func RenderOperations(catalog *endpoints.Catalog) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Operation", "Endpoint", "Required", "Description"})

	for _, name := range catalog.Names() {
		op, _ := catalog.Lookup(name)
		t.AppendRow(table.Row{op.Name, op.Endpoint, fmt.Sprint(op.Required), op.Description})
	}

	return t.Render()
}

// RenderCacheStats renders cache occupancy
func RenderCacheStats(dir string, ttl time.Duration, stats cache.Stats) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Directory", "TTL", "Entries", "Fresh", "Stale", "Bytes"})
	t.AppendRow(table.Row{dir, formatDuration(ttl), stats.Entries, stats.Fresh, stats.Stale, stats.Bytes})
	return t.Render()
}

// RenderHistory renders recent fetches
func RenderHistory(records []history.Record) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Time", "Endpoint", "Status", "Cache", "Attempts", "Duration"})

	for _, r := range records {
		status := r.FinalStatus
		if r.FailureKind != "" {
			status += " (" + r.FailureKind + ")"
		}
		cacheLabel := "miss"
		if r.CacheHit {
			cacheLabel = "hit"
		}
		t.AppendRow(table.Row{
			r.Timestamp.UTC().Format(time.RFC3339),
			r.Endpoint,
			status,
			cacheLabel,
			r.Attempts,
			formatDuration(time.Duration(r.DurationSeconds * float64(time.Second))),
		})
	}

	return t.Render()
}

// RenderSummary renders per-endpoint aggregates
func RenderSummary(s *history.Summary) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Endpoint", "Fetches", "Success", "Cache Hits", "Avg Attempts", "Avg Duration"})

	for _, es := range s.Endpoints {
		t.AppendRow(table.Row{
			es.Endpoint,
			es.Count,
			percent(es.SuccessRate),
			percent(es.CacheHitRate),
			fmt.Sprintf("%.2f", es.AverageAttempts),
			formatDuration(es.AvgDuration),
		})
	}

	t.AppendFooter(table.Row{"total", s.TotalFetches, percent(s.SuccessRate), "", "", ""})
	return t.Render()
}

func percent(rate float64) string {
	return fmt.Sprintf("%.1f%%", rate*100)
}
