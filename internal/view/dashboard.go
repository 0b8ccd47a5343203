// Package view turns application state into template-ready view models.
package view

import (
	"encoding/json"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"foresight/internal/dashboard"
	"foresight/internal/models"
)

// Placeholder stands in for values the analysis did not report.
const Placeholder = "—"

const notSpecified = "Not specified"

// Tab is one entry of the dashboard navigation.
type Tab struct {
	Title  string
	Anchor string
}

// Tabs lists the dashboard sections in display order.
var Tabs = []Tab{
	{Title: "🏢 Introduction", Anchor: "introduction"},
	{Title: "💰 Financials", Anchor: "financials"},
	{Title: "⚠️ Risks", Anchor: "risks"},
	{Title: "🚀 Growth Potential", Anchor: "growth"},
	{Title: "📊 Peer Benchmarking", Anchor: "peers"},
}

type FieldRow struct {
	Key   string
	Value string
}

type Section struct {
	Title  string
	Anchor string
	Rows   []FieldRow
}

// Empty reports whether the section has nothing to show.
func (s Section) Empty() bool { return len(s.Rows) == 0 }

// Gauge is the risk-o-meter: a 0-5 score with a colour band.
type Gauge struct {
	Score   string
	Value   float64
	Band    string
	Color   string
	Percent float64
	Reason  string
}

type PeerRow struct {
	Cells     []string
	Highlight bool
}

type PeerTable struct {
	Columns []string
	Rows    []PeerRow
}

// DashboardView is the rendered form of a models.Dashboard.
type DashboardView struct {
	StartupName     string
	Website         string
	Summary         string
	DetailedSummary template.HTML
	Tabs            []Tab
	Sections        []Section
	Gauge           *Gauge
	Peers           *PeerTable
	FilesProcessed  int
	ResponseTime    string
}

// FieldValue renders one extracted value, using Placeholder for null, empty
// and "Not specified".
func FieldValue(v any) string {
	switch val := v.(type) {
	case nil:
		return Placeholder
	case string:
		s := strings.TrimSpace(val)
		if s == "" || s == notSpecified {
			return Placeholder
		}
		return s
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case []any:
		if len(val) == 0 {
			return Placeholder
		}
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := FieldValue(item); s != Placeholder {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			return Placeholder
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		if len(val) == 0 {
			return Placeholder
		}
		raw, err := json.Marshal(val)
		if err != nil {
			return Placeholder
		}
		return string(raw)
	default:
		return fmt.Sprint(val)
	}
}

// RiskBand maps a 0-5 risk score onto its colour band.
func RiskBand(score float64) (band, color string) {
	switch {
	case score <= 2:
		return "low", "#22c55e"
	case score <= 3.5:
		return "medium", "#facc15"
	default:
		return "high", "#ef4444"
	}
}

func riskGauge(risks models.Group) *Gauge {
	raw, _ := risks.Get(dashboard.KeyRiskGauge)
	var score float64
	switch v := raw.(type) {
	case float64:
		score = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		score = parsed
	default:
		return nil
	}
	if score == 0 {
		return nil
	}
	band, color := RiskBand(score)
	percent := score / 5 * 100
	if percent > 100 {
		percent = 100
	}
	reason := "No reason provided."
	if r, _ := risks.Get(dashboard.KeyRiskGaugeReason); FieldValue(r) != Placeholder {
		reason = FieldValue(r)
	}
	return &Gauge{
		Score:   strconv.FormatFloat(score, 'f', -1, 64),
		Value:   score,
		Band:    band,
		Color:   color,
		Percent: percent,
		Reason:  reason,
	}
}

func fieldRows(g models.Group) []FieldRow {
	rows := make([]FieldRow, 0, len(g.Fields))
	for _, f := range g.Fields {
		if f.Key == dashboard.KeyRiskGauge || f.Key == dashboard.KeyRiskGaugeReason {
			continue
		}
		rows = append(rows, FieldRow{Key: f.Key, Value: FieldValue(f.Value)})
	}
	return rows
}

func peerTable(d *models.Dashboard) *PeerTable {
	if d.PeerComparison == nil || d.PeerComparison.Comparison == nil {
		return nil
	}
	cmp := d.PeerComparison.Comparison
	table := &PeerTable{Columns: cmp.Columns}
	for _, company := range cmp.Companies {
		row := PeerRow{Cells: make([]string, len(cmp.Columns))}
		for i, col := range cmp.Columns {
			row.Cells[i] = FieldValue(company[col])
		}
		if name, ok := company["Company"].(string); ok && name != "" && name == d.StartupName {
			row.Highlight = true
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

// Dashboard builds the five-tab dashboard view. It returns nil for a nil result.
func Dashboard(d *models.Dashboard) *DashboardView {
	if d == nil {
		return nil
	}
	v := &DashboardView{
		StartupName:    FieldValue(d.StartupName),
		Website:        Placeholder,
		Summary:        strings.TrimSpace(d.Summary),
		Tabs:           Tabs,
		Peers:          peerTable(d),
		FilesProcessed: d.FilesProcessed,
	}
	if v.Summary == "" {
		v.Summary = "No summary available."
	}
	if strings.TrimSpace(d.DetailedSummary) != "" {
		v.DetailedSummary = Markdown(d.DetailedSummary)
	}
	if d.ResponseTime > 0 {
		v.ResponseTime = strconv.FormatFloat(d.ResponseTime, 'f', 2, 64) + "s"
	}

	groups := []string{dashboard.GroupIntroduction, dashboard.GroupFinancials, dashboard.GroupRisks, dashboard.GroupGrowth}
	for i, name := range groups {
		grp, _ := d.Extracted.Group(name)
		if name == dashboard.GroupIntroduction {
			if w, ok := grp.Get("🔗 Website"); ok {
				v.Website = FieldValue(w)
			}
		}
		if name == dashboard.GroupRisks {
			v.Gauge = riskGauge(grp)
		}
		v.Sections = append(v.Sections, Section{
			Title:  Tabs[i].Title,
			Anchor: Tabs[i].Anchor,
			Rows:   fieldRows(grp),
		})
	}
	return v
}
