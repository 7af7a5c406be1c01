// Package inflight は同一キーの同時リクエストを1回の上流呼び出しにまとめる。
// ページ描画が同時に集中した際にリモートストアへの同一クエリが殺到するのを防ぐための
// 負荷抑制であり、正しさの要件ではない。
package inflight

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Group はキー単位で実行中の呼び出しを共有する。ゼロ値は使用できない。
type Group[T any] struct {
	g singleflight.Group
}

// New はGroupを生成する。
func New[T any]() *Group[T] {
	return &Group[T]{}
}

// Do はkeyに対応する呼び出しが実行中であればその結果を待ち、なければfnを実行する。
// fnには呼び出し元のキャンセルを引き継がないコンテキストを渡す（先頭の呼び出し元が
// 離脱しても他の待機者の結果を壊さないため）。タイムアウトはfn側で設定すること。
// 呼び出し元のctxが先に終了した場合は待機をやめてctx.Err()を返す。
// sharedは結果が他の呼び出し元と共有されたかどうか。
func (g *Group[T]) Do(ctx context.Context, key string, fn func(ctx context.Context) (T, error)) (v T, shared bool, err error) {
	detached := context.WithoutCancel(ctx)
	ch := g.g.DoChan(key, func() (any, error) {
		return fn(detached)
	})

	select {
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Shared, res.Err
		}
		return res.Val.(T), res.Shared, nil
	}
}
