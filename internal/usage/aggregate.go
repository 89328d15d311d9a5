package usage

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/contract-reconciler/internal/domain/entity"
)

// Aggregate summarizes records for a labelled period
func Aggregate(period string, from, to time.Time, records []entity.UsageRecord) *entity.UsageAggregate {
	agg := &entity.UsageAggregate{
		Period:      period,
		From:        from,
		To:          to,
		TotalCost:   decimal.Zero,
		ByOperation: make(map[entity.Operation]entity.UsageBreakdown),
		ByModel:     make(map[string]entity.UsageBreakdown),
	}

	var totalTime int64
	for _, r := range records {
		agg.TotalRequests++
		if r.Success {
			agg.SuccessfulRequests++
		} else {
			agg.FailedRequests++
		}
		agg.TotalTokens += r.TokensUsed
		agg.TotalCost = agg.TotalCost.Add(r.EstimatedCost)
		totalTime += r.ProcessingTime

		agg.ByOperation[r.Operation] = addTo(agg.ByOperation[r.Operation], r)
		agg.ByModel[r.Model] = addTo(agg.ByModel[r.Model], r)
	}
	if agg.TotalRequests > 0 {
		agg.AverageProcessingTime = totalTime / int64(agg.TotalRequests)
	}
	return agg
}

func addTo(b entity.UsageBreakdown, r entity.UsageRecord) entity.UsageBreakdown {
	b.Requests++
	b.Tokens += r.TokensUsed
	b.Cost = b.Cost.Add(r.EstimatedCost)
	return b
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
