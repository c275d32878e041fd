package metrics

import (
	"context"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

// Distributions
var defaultMillisecondsDistribution = view.Distribution(
	0.01, 0.05, 0.1, 0.3, 0.6, 0.8, 1, 2, 3, 4, 5, 6, 8, // Very short intervals for fast operations
	10, 20, 30, 40, 50, 60, 70, 80, 90, 100, // 10 ms intervals up to 100 ms
	150, 200, 250, 300, 350, 400, 450, 500, // 50 ms intervals from 100 to 500 ms
	600, 700, 800, 900, 1000, // 100 ms intervals from 500 to 1000 ms
	2000, 3000, 4000, 5000, 6000, 8000, 10000, 13000, 16000, 20000, 25000, 30000, 40000, 50000, 65000, 80000, 100000,
)

// Tags
var (
	Version, _  = tag.NewKey("version")
	Network, _  = tag.NewKey("network")
	ExitCode, _ = tag.NewKey("exit_code")
)

// Measures
var (
	AsterInfo          = stats.Int64("info", "Arbitrary counter to tag node info to", stats.UnitDimensionless)
	ChainEpoch         = stats.Int64("chain/epoch", "Current epoch of the applied chain head", stats.UnitDimensionless)
	MessageApplied     = stats.Int64("message/applied", "Counter for messages applied by the VM", stats.UnitDimensionless)
	MessageApplyFail   = stats.Int64("message/apply_fail", "Counter for messages that failed to apply", stats.UnitDimensionless)
	VMApplyBlocksTotal = stats.Float64("vm/applyblocks_total_ms", "Time spent applying block state", stats.UnitMilliseconds)
	VMApplyMessages    = stats.Float64("vm/applyblocks_messages", "Time spent applying block messages", stats.UnitMilliseconds)
	VMApplyCron        = stats.Float64("vm/applyblocks_cron", "Time spent in cron", stats.UnitMilliseconds)
	VMApplyFlush       = stats.Float64("vm/applyblocks_flush", "Time spent flushing vm state", stats.UnitMilliseconds)
	VMSends            = stats.Int64("vm/sends", "Counter for sends processed by the VM", stats.UnitDimensionless)
	VMApplied          = stats.Int64("vm/applied", "Counter for messages (including internal messages) processed by the VM", stats.UnitDimensionless)
)

// Views
var (
	InfoView = &view.View{
		Name:        "info",
		Description: "node information",
		Measure:     AsterInfo,
		Aggregation: view.LastValue(),
		TagKeys:     []tag.Key{Version, Network},
	}
	ChainEpochView = &view.View{
		Measure:     ChainEpoch,
		Aggregation: view.LastValue(),
	}
	MessageAppliedView = &view.View{
		Measure:     MessageApplied,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{ExitCode},
	}
	MessageApplyFailView = &view.View{
		Measure:     MessageApplyFail,
		Aggregation: view.Count(),
	}
	VMApplyBlocksTotalView = &view.View{
		Measure:     VMApplyBlocksTotal,
		Aggregation: defaultMillisecondsDistribution,
	}
	VMApplyMessagesView = &view.View{
		Measure:     VMApplyMessages,
		Aggregation: defaultMillisecondsDistribution,
	}
	VMApplyCronView = &view.View{
		Measure:     VMApplyCron,
		Aggregation: defaultMillisecondsDistribution,
	}
	VMApplyFlushView = &view.View{
		Measure:     VMApplyFlush,
		Aggregation: defaultMillisecondsDistribution,
	}
	VMSendsView = &view.View{
		Measure:     VMSends,
		Aggregation: view.LastValue(),
	}
	VMAppliedView = &view.View{
		Measure:     VMApplied,
		Aggregation: view.LastValue(),
	}
)

// DefaultViews is the list of views a node registers on startup.
var DefaultViews = []*view.View{
	InfoView,
	ChainEpochView,
	MessageAppliedView,
	MessageApplyFailView,
	VMApplyBlocksTotalView,
	VMApplyMessagesView,
	VMApplyCronView,
	VMApplyFlushView,
	VMSendsView,
	VMAppliedView,
}

// SinceInMilliseconds returns the duration of time since the provide time as a float64.
func SinceInMilliseconds(startTime time.Time) float64 {
	return float64(time.Since(startTime).Nanoseconds()) / 1e6
}

// Timer is a function stopwatch, calling it starts the timer,
// calling the returned function will record the duration.
func Timer(ctx context.Context, m *stats.Float64Measure) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		stats.Record(ctx, m.M(SinceInMilliseconds(start)))
		return time.Since(start)
	}
}
