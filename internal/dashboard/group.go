package dashboard

import "foresight/internal/models"

type fieldSpec struct {
	label  string
	source string
}

type groupSpec struct {
	name   string
	fields []fieldSpec
}

// extractedLayout is the fixed display layout of extracted_data.
var extractedLayout = []groupSpec{
	{
		name: "Introduction",
		fields: []fieldSpec{
			{"🏢 Company Name", "company_name"},
			{"🔗 Website", "website_url"},
			{"🏭 Industry", "industry"},
			{"💰 Valuation", "valuation"},
			{"📊 Funding Rounds", "funding_rounds"},
			{"🏦 Type Of Funding", "type_of_funding"},
			{"👤 Founders Info", "founders_info"},
			{"👥 Number Of Employees", "number_of_employees"},
			{"📍 Headquarters", "headquarters"},
			{"⚙️ Business Model", "business_model"},
		},
	},
	{
		name: "Financials",
		fields: []fieldSpec{
			{"📈 Revenue", "revenue"},
			{"🔁 ARR", "arr"},
			{"💵 Profit", "profit"},
			{"📉 Current Investors Stake", "current_investors_stake"},
			{"🌍 TAM", "tam"},
			{"⚠️ Liabilities", "liabilities"},
			{"🎯 CAC", "cac"},
			{"🔥 Burn Rate", "burn_rate"},
			{"🛫 Runway", "runway"},
			{"💳 Cash Reserve", "cash_reserve"},
			{"⏳ Total Runway", "total_runway"},
			{"🏗️ Fixed Assets", "fixed_assets"},
			{"🛠️ Raw Materials Cost", "raw_materials_cost"},
			{"📦 Inventory Cost", "inventory_cost"},
			{"📢 Marketing Cost", "marketing_cost"},
			{"⚙️ Operations Cost", "operations_cost"},
		},
	},
	{
		name: "Risks",
		fields: []fieldSpec{
			{"🚨 Risk Summary", "risk_summary"},
			{"🏭 Operational Risks", "operational_risks"},
			{"🙋 Customer Risks", "customer_risks"},
			{"📊 Risk Gauge", "risk_gauge"},
			{"ℹ️ Risk Gauge Reason", "risk_gauge_reason"},
		},
	},
	{
		name: "Growth Potential",
		fields: []fieldSpec{
			{"🌱 Growth", "growth"},
			{"🏙️ Expanding To Cities", "expanding_to_cities"},
			{"⭐ USP", "usp"},
			{"📊 Market Demand", "market_demand"},
			{"🆕 New Products", "new_products"},
			{"📜 Patents", "patents"},
			{"💬 Customer Feedback", "customer_feedback"},
			{"🚀 Innovation Rate", "innovation_rate"},
		},
	},
}

// Group names in display order.
const (
	GroupIntroduction = "Introduction"
	GroupFinancials   = "Financials"
	GroupRisks        = "Risks"
	GroupGrowth       = "Growth Potential"
)

// Keys the presentation layer reads directly.
const (
	KeyRiskGauge       = "📊 Risk Gauge"
	KeyRiskGaugeReason = "ℹ️ Risk Gauge Reason"
)

// GroupExtracted maps the flat extracted_data object onto the fixed groups.
// Fields missing upstream are kept with a nil value.
func GroupExtracted(extracted map[string]any) models.Grouped {
	out := make(models.Grouped, 0, len(extractedLayout))
	for _, layout := range extractedLayout {
		grp := models.Group{Name: layout.name, Fields: make([]models.Field, 0, len(layout.fields))}
		for _, f := range layout.fields {
			grp.Fields = append(grp.Fields, models.Field{Key: f.label, Value: extracted[f.source]})
		}
		out = append(out, grp)
	}
	return out
}
