package service

import (
	"time"

	"tradeledger/internal/domain"
)

// DedupBucketMillis is the width of the time bucket in the fuzzy trade key
const DedupBucketMillis int64 = 5 * 60 * 1000

// TradeFingerprint is the fuzzy identity of a closed trade:
// entry price, close price and the 5-minute bucket of the close time.
//
// This is an approximation, not an idempotency key. Two distinct trades with
// identical prices closing in the same bucket collapse into one (false
// positive), and a trade whose reported close time moves across a bucket
// boundary between imports is stored twice (false negative). The exchange
// offers no stable key for closed-PnL records across re-imports.
type TradeFingerprint struct {
	EntryPrice float64
	ClosePrice float64
	Bucket     int64
}

// FingerprintOf builds the fuzzy key of a trade
func FingerprintOf(entryPrice, closePrice float64, closedAt time.Time) TradeFingerprint {
	return TradeFingerprint{
		EntryPrice: entryPrice,
		ClosePrice: closePrice,
		Bucket:     floorDiv(closedAt.UnixMilli(), DedupBucketMillis),
	}
}

// FingerprintOfPosition builds the fuzzy key of a closed position
func FingerprintOfPosition(p *domain.Position) (TradeFingerprint, bool) {
	if p.ClosePrice == nil || p.ClosedAt == nil {
		return TradeFingerprint{}, false
	}
	return FingerprintOf(p.EntryPrice, *p.ClosePrice, *p.ClosedAt), true
}

// FilterDuplicates splits candidates into trades not yet known and trades to skip.
// A candidate is skipped when its fingerprint matches an existing trade or an
// earlier candidate in the same batch.
func FilterDuplicates(candidates []*domain.Position, existing []domain.ClosedTradeKey) (kept, skipped []*domain.Position) {
	seen := make(map[TradeFingerprint]struct{}, len(existing)+len(candidates))
	for _, e := range existing {
		seen[FingerprintOf(e.EntryPrice, e.ClosePrice, e.ClosedAt)] = struct{}{}
	}

	for _, c := range candidates {
		fp, ok := FingerprintOfPosition(c)
		if !ok {
			skipped = append(skipped, c)
			continue
		}
		if _, dup := seen[fp]; dup {
			skipped = append(skipped, c)
			continue
		}
		seen[fp] = struct{}{}
		kept = append(kept, c)
	}
	return kept, skipped
}

// floorDiv rounds toward negative infinity so pre-1970 times bucket consistently
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
