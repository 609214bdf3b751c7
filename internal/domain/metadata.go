package domain

import (
	"encoding/json"
	"time"
)

// Metadata sources
const (
	SourceManualClose    = "manual_close"
	SourceExchangeImport = "exchange_import"
	SourceBackfill       = "backfill"
)

// Symbol categories
const (
	CategoryBTCETH  = "BTC_ETH"
	CategoryMajor   = "MAJOR"
	CategoryAltcoin = "ALTCOIN"
)

// Margin buckets
const (
	MarginBucketUnder1 = "<1"
	MarginBucket1To2   = "1-2"
	MarginBucket2To5   = "2-5"
	MarginBucketOver5  = ">5"
)

// PositionMetadata holds derived and provenance fields of a position.
// Exactly one of ManualClose / ExchangeImport / Backfill is expected to match Source.
// Keys this version does not know about are kept in Extra and written back unchanged.
type PositionMetadata struct {
	Source         string                 `json:"source,omitempty"`
	ManualClose    *ManualCloseInfo       `json:"manual_close,omitempty"`
	ExchangeImport *ExchangeImportInfo    `json:"exchange_import,omitempty"`
	Backfill       *BackfillInfo          `json:"backfill,omitempty"`
	Classification *Classification        `json:"classification,omitempty"`
	Extra          map[string]interface{} `json:"-"`
}

// ManualCloseInfo records how a settlement went
type ManualCloseInfo struct {
	CloseReason   string                `json:"close_reason"`
	DegradedPrice bool                  `json:"degraded_price"` // ticker failed, entry price used
	Cancellations []CancellationOutcome `json:"cancellations,omitempty"`
}

// ExchangeImportInfo keeps the raw exchange fields of an imported trade
type ExchangeImportInfo struct {
	SourceTradeID      string  `json:"source_trade_id"`
	OrderID            string  `json:"order_id,omitempty"`
	MarginMode         string  `json:"margin_mode,omitempty"`
	ClosedPnL          float64 `json:"closed_pnl"`
	CumEntryValue      float64 `json:"cum_entry_value"`
	CumExitValue       float64 `json:"cum_exit_value"`
	FillCount          int     `json:"fill_count"`
	ExecType           string  `json:"exec_type,omitempty"`
	ExchangeLeverage   string  `json:"exchange_leverage,omitempty"`
	LeverageAssumed    bool    `json:"leverage_assumed"`
	TimestampDefaulted bool    `json:"timestamp_defaulted"`
}

// BackfillInfo marks metadata computed after the fact
type BackfillInfo struct {
	BackfilledAt time.Time `json:"backfilled_at"`
}

// Classification is the margin/category breakdown used by analytics
type Classification struct {
	Margin         float64 `json:"margin"`
	SymbolCategory string  `json:"symbol_category"`
	MarginBucket   string  `json:"margin_bucket"`
}

// CancellationOutcome is the result of one dependent-order cancellation attempt
type CancellationOutcome struct {
	Kind    string `json:"kind"`
	OrderID string `json:"order_id"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

var knownMetadataKeys = []string{"source", "manual_close", "exchange_import", "backfill", "classification"}

type metadataAlias PositionMetadata

// MarshalJSON merges Extra into the top-level object
func (m PositionMetadata) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(metadataAlias(m))
	if err != nil {
		return nil, err
	}
	if len(m.Extra) == 0 {
		return known, nil
	}

	merged := make(map[string]interface{}, len(m.Extra)+len(knownMetadataKeys))
	for k, v := range m.Extra {
		merged[k] = v
	}
	var knownMap map[string]interface{}
	if err := json.Unmarshal(known, &knownMap); err != nil {
		return nil, err
	}
	for k, v := range knownMap {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON splits unknown keys into Extra
func (m *PositionMetadata) UnmarshalJSON(b []byte) error {
	var alias metadataAlias
	if err := json.Unmarshal(b, &alias); err != nil {
		return err
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for _, k := range knownMetadataKeys {
		delete(raw, k)
	}

	*m = PositionMetadata(alias)
	if len(raw) > 0 {
		m.Extra = raw
	}
	return nil
}
