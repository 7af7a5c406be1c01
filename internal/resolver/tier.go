package resolver

import (
	"context"
	"log/slog"

	"github.com/hitoshi/citycontent/internal/metrics"
	"github.com/hitoshi/citycontent/internal/model"
)

// Source は応答した読み取り層を表す。
type Source string

const (
	SourceCache    Source = "cache"
	SourceRemote   Source = "remote"
	SourceSnapshot Source = "snapshot"
	SourceLocal    Source = "local"
	// SourceNone はどの層もヒットしなかったことを表す。
	SourceNone Source = "none"
)

// Result は読み取り層の結果。Hitの場合はItemsを持ち、Missの場合は理由を持つ。
type Result struct {
	Items  []model.ContentItem
	Source Source
	Reason string
	hit    bool
}

// Hit はヒットした結果を返す。
func Hit(src Source, items []model.ContentItem) Result {
	return Result{Items: items, Source: src, hit: true}
}

// Miss はヒットしなかった結果を理由付きで返す。
func Miss(src Source, reason string) Result {
	return Result{Source: src, Reason: reason}
}

// IsHit はヒットしたかどうかを返す。
func (r Result) IsHit() bool {
	return r.hit
}

// First は先頭のアイテムを返す。ヒットしていない場合はfalse。
func (r Result) First() (*model.ContentItem, bool) {
	if !r.hit || len(r.Items) == 0 {
		return nil, false
	}
	item := r.Items[0]
	return &item, true
}

// Tier は1つの読み取り層。
type Tier struct {
	Source Source
	Fetch  func(ctx context.Context) Result
}

// Chain は層を順に試し、最初にヒットした結果を返す。
// すべてMissの場合は空のItemsとSourceNoneを返す（エラーにはしない）。
func Chain(ctx context.Context, op string, logger *slog.Logger, mc metrics.MetricsCollector, tiers ...Tier) Result {
	for _, tier := range tiers {
		res := tier.Fetch(ctx)
		mc.RecordTierResult(op, string(tier.Source), res.hit)
		if res.hit {
			res.Source = tier.Source
			return res
		}

		level := slog.LevelWarn
		if tier.Source == SourceCache {
			level = slog.LevelDebug
		}
		logger.Log(ctx, level, "読み取り層をスキップしました",
			slog.String("operation", op),
			slog.String("tier", string(tier.Source)),
			slog.String("reason", res.Reason),
		)
	}

	return Result{Items: []model.ContentItem{}, Source: SourceNone, Reason: "all tiers missed"}
}
