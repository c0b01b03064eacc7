package entity

import (
	"time"

	"github.com/southbay-capital/fundsync/internal/api"
	"github.com/southbay-capital/fundsync/internal/merge"
)

// trackedPortfolioIDs are the funds whose position endpoints are
// queried. The upstream returns nothing useful without an explicit
// portfolio filter.
var trackedPortfolioIDs = []int{
	875, 1158, 1159, 1160, 1576, 1308, 843,
	427, 984, 144, 732, 506, 161, 964, 685, 499,
	775, 1298, 934, 1215, 1299, 1213,
	657, 1211, 980, 616, 1184, 1137, 1277,
	1212, 1216, 774, 1303, 159, 1274, 824, 1569,
	653, 950, 879, 164, 505, 145, 1924, 1987, 1539,
}

// fundPLSourceIDs is the allow-list of pricing sources kept for fund
// P&L rows.
var fundPLSourceIDs = map[int64]bool{15: true, 11: true, 7: true, 33: true}

// provisionSector marks provision lines, which carry no sector of
// their own.
const provisionSector = "N/A"

const dateFormat = "2006-01-02"

// Operations ingests executed trade operations, one row per operation
// id per date.
var Operations = &Definition{
	Name:           "operations",
	Endpoint:       "operations/operations/get",
	PayloadKey:     "objects",
	FlattenNested:  true,
	IdentityFields: []string{"id"},
	RequiredColumns: []string{
		"id", "date",
	},
	Columns: []string{
		"id",
		"origin_id",
		"portfolio_id",
		"portfolio_name",
		"instrument_id",
		"date",
		"cash_settlement_date",
		"quantity",
		"instrument_symbol",
		"side_name",
		"unit_value",
		"brokerage_fee_gross_value",
		"total_financial_net",
		"executing_brokerage_fee_value",
		"brokerage_fee_net_value",
		"carrying_brokerage_fee_value",
		"brokerage_rebate_value",
		"total_emoluments_value",
		"emoluments_value",
		"settlement_fee_value",
		"book_name",
		"broker_name",
		"rebate_percent",
	},
	NumericColumns: []string{
		"quantity", "unit_value", "brokerage_fee_gross_value", "total_financial_net",
		"executing_brokerage_fee_value", "brokerage_fee_net_value", "carrying_brokerage_fee_value",
		"brokerage_rebate_value", "total_emoluments_value", "emoluments_value",
		"settlement_fee_value", "rebate_percent",
	},
	DateColumns:   []string{"date", "cash_settlement_date"},
	IntColumns:    []string{"portfolio_id", "instrument_id", "origin_id"},
	NonNullColumn: "id",
	Key:           merge.Key{IDColumn: "id", DateColumn: "date"},
	BuildFilter: func(date time.Time) map[string]any {
		return map[string]any{
			"start_date":           date.Format(dateFormat),
			"end_date":             date.Format(dateFormat),
			"sides":                []int{6, 7, 8, 4, 3, 1, 2, 5},
			"instrument_group_ids": []int{8, 11},
		}
	},
}

// Movements ingests liability transaction orders plus three dimension
// tables derived from them.
var Movements = &Definition{
	Name:           "movements",
	Endpoint:       "liabilities/transaction_order/get",
	PayloadKey:     "objects",
	FlattenNested:  true,
	IdentityFields: []string{"id"},
	RequiredColumns: []string{
		"id", "portfolio_id", "portfolio_name", "investor_id", "investor_name",
		"distributor_id", "distributor_name", "transaction_type_description",
		"net_financial_value", "request_date", "conversion_date", "payment_date",
		"investor_legal_id", "investor_legal_entity_type", "account_group_name",
		"investor_custody_account_name", "navps", "shares_amount", "invested_book_id",
	},
	Columns: []string{
		"id",
		"portfolio_id",
		"portfolio_name",
		"investor_id",
		"investor_name",
		"distributor_id",
		"distributor_name",
		"transaction_type_description",
		"net_financial_value",
		"request_date",
		"conversion_date",
		"payment_date",
		"investor_legal_id",
		"investor_legal_entity_type",
		"account_group_name",
		"investor_custody_account_name",
		"navps",
		"shares_amount",
		"invested_book_id",
	},
	NumericColumns: []string{"net_financial_value", "navps", "shares_amount"},
	DateColumns:    []string{"request_date", "conversion_date", "payment_date"},
	IntColumns:     []string{"portfolio_id", "investor_id", "distributor_id"},
	NonNullColumn:  "id",
	Key:            merge.Key{IDColumn: "id"},
	BuildFilter: func(date time.Time) map[string]any {
		return map[string]any{
			"include_administrator_account_group_ids_by_transaction": "true",
			"request_start_date": date.Format(dateFormat),
			"request_end_date":   date.Format(dateFormat),
			"status":             []int{3, 2},
		}
	},
	Children: []Derived{
		{
			Name:     "portfolio",
			Columns:  []string{"portfolio_id", "portfolio_name", "invested_book_id"},
			IDColumn: "portfolio_id",
		},
		{
			Name:     "investor",
			Columns:  []string{"investor_id", "investor_name"},
			IDColumn: "investor_id",
		},
		{
			Name:     "distributor",
			Columns:  []string{"distributor_id", "distributor_name"},
			IDColumn: "distributor_id",
		},
	},
}

// FundPLs ingests daily fund P&L prices from the allow-listed pricing
// sources.
var FundPLs = &Definition{
	Name:           "fund_pls",
	Endpoint:       "market_data/pricing/prices/get",
	PayloadKey:     "prices",
	SingleShot:     true,
	FlattenNested:  true,
	IdentityFields: []string{"id"},
	RequiredColumns: []string{
		"instrument", "id", "instrument_id", "date", "fund_pl", "source_id",
	},
	Columns: []string{
		"instrument",
		"id",
		"instrument_id",
		"date",
		"fund_pl",
		"source_id",
	},
	NumericColumns: []string{"fund_pl"},
	DateColumns:    []string{"date"},
	IntColumns:     []string{"instrument_id"},
	NonNullColumn:  "id",
	Key:            merge.Key{IDColumn: "id"},
	Filter: func(rec api.Record) bool {
		id, ok := toInt(rec["source_id"]).(int64)
		return ok && fundPLSourceIDs[id]
	},
	BuildFilter: func(date time.Time) map[string]any {
		return map[string]any{
			"instrument_types": []int{3},
			"start_date":       date.Format(dateFormat),
			"end_date":         date.Format(dateFormat),
		}
	},
}

// Positions ingests month-end investor positions, deduplicated by a
// composite business key because the upstream assigns no stable id.
var Positions = &Definition{
	Name:       "positions",
	Endpoint:   "liabilities/position/get",
	PayloadKey: "positions",
	IdentityFields: []string{
		"portfolio_name", "date", "investor_names", "shares_amount",
	},
	RequiredColumns: []string{
		"date", "shares_amount", "distributor_name", "investor_names", "financial_value",
		"portfolio_name", "participation_in_portfolio", "account_group_names", "investor_ids",
	},
	Columns: []string{
		"date",
		"shares_amount",
		"distributor_name",
		"investor_names",
		"financial_value",
		"portfolio_name",
		"participation_in_portfolio",
		"account_group_names",
		"investor_ids",
	},
	NumericColumns: []string{"shares_amount", "financial_value", "participation_in_portfolio"},
	DateColumns:    []string{"date"},
	IntColumns:     []string{"investor_ids"},
	NonNullColumn:  "date",
	Key: merge.Key{
		Columns: []string{
			"portfolio_name", "date", "investor_names", "distributor_name",
			"account_group_names", "shares_amount", "financial_value",
		},
		RoundColumns: []string{"shares_amount", "financial_value"},
		DateColumn:   "date",
	},
	BatchMonthEnds:      true,
	DefaultPrevMonthEnd: true,
	PostProcess: func(rec api.Record) {
		// The upstream sends a list of investor ids; only the first
		// one is kept.
		if ids, ok := rec["investor_ids"].([]any); ok && len(ids) > 0 {
			rec["investor_ids"] = ids[0]
		} else {
			rec["investor_ids"] = nil
		}
	},
	BuildFilter: func(date time.Time) map[string]any {
		return map[string]any{
			"start_date":               date.Format(dateFormat),
			"end_date":                 date.Format(dateFormat),
			"include_participation":    "true",
			"include_profitability":    "true",
			"include_inactive_records": "true",
			"aggregation_mode":         6,
			"portfolio_ids":            trackedPortfolioIDs,
		}
	},
}

// FundPortfolio ingests month-end fund holdings. The payload is a map
// of portfolios; each is exploded into holding lines and provision
// lines, which are then aggregated per instrument.
var FundPortfolio = &Definition{
	Name:          "fund_portfolio",
	Endpoint:      "portfolio_position/positions/get",
	PayloadKey:    "objects",
	SingleShot:    true,
	KeepObjectKey: true,
	RequiredColumns: []string{
		"date", "portfolio_name", "instrument_name", "position_type",
	},
	Columns: []string{
		"date",
		"portfolio_name",
		"portfolio_id",
		"instrument_name",
		"quantity",
		"price",
		"asset_value",
		"book_name",
		"position_type",
		"pct_net_asset_value",
		"pct_asset_value",
		"sector_name",
	},
	NumericColumns: []string{
		"quantity", "price", "asset_value", "pct_net_asset_value", "pct_asset_value",
	},
	DateColumns:   []string{"date"},
	IntColumns:    []string{"portfolio_id"},
	NonNullColumn: "date",
	Key: merge.Key{
		Columns:    []string{"portfolio_name", "date", "instrument_name", "position_type"},
		DateColumn: "date",
	},
	BatchMonthEnds: true,
	Expand:         expandPortfolios,
	Aggregate: &Aggregation{
		GroupBy: []string{"date", "portfolio_name", "portfolio_id", "instrument_name", "position_type", "sector_name"},
		Sum:     []string{"asset_value", "quantity", "pct_net_asset_value", "pct_asset_value"},
		Mean:    []string{"price"},
		First:   []string{"book_name"},
	},
	BuildFilter: func(date time.Time) map[string]any {
		return map[string]any{
			"start_date":                      date.Format(dateFormat),
			"end_date":                        date.Format(dateFormat),
			"instrument_position_aggregation": 3,
			"portfolio_ids":                   trackedPortfolioIDs,
		}
	},
}

// expandPortfolios flattens portfolio containers into one record per
// holding or provision line.
func expandPortfolios(recs []api.Record) []api.Record {
	var out []api.Record
	for _, portfolio := range recs {
		name := portfolio["name"]
		date := portfolio["date"]
		id := portfolio[api.ObjectKeyField]

		if positions, ok := portfolio["instrument_positions"].([]any); ok {
			for _, p := range positions {
				pos, ok := p.(map[string]any)
				if !ok {
					continue
				}
				line := api.Record(pos).Clone()
				line["portfolio_name"] = name
				line["portfolio_id"] = id
				line["date"] = date
				line["position_type"] = "POSITION"
				out = append(out, api.FlattenNested(line))
			}
		}

		if transactions, ok := portfolio["financial_transaction_positions"].([]any); ok {
			for _, t := range transactions {
				tx, ok := t.(map[string]any)
				if !ok {
					continue
				}
				out = append(out, api.Record{
					"portfolio_name":      name,
					"portfolio_id":        id,
					"date":                date,
					"instrument_name":     tx["category_name"],
					"quantity":            float64(1),
					"price":               numOrZero(tx, "financial_value"),
					"asset_value":         numOrZero(tx, "financial_value"),
					"book_name":           tx["book_name"],
					"position_type":       "PROVISION",
					"pct_net_asset_value": numOrZero(tx, "pct_net_asset_value"),
					"pct_asset_value":     nil,
					"sector_name":         provisionSector,
				})
			}
		}
	}
	return out
}

func numOrZero(m map[string]any, key string) any {
	if v, ok := m[key]; ok && v != nil {
		return v
	}
	return float64(0)
}

// Definitions lists every registered entity in registration order.
func Definitions() []*Definition {
	return []*Definition{Operations, Movements, FundPLs, Positions, FundPortfolio}
}

// ByName looks up a registered entity.
func ByName(name string) *Definition {
	for _, d := range Definitions() {
		if d.Name == name {
			return d
		}
	}
	return nil
}
