package app

import (
	"context"

	"eveBot/internal/domain"
	"eveBot/internal/ports"
)

// FillPager pages our execution history newest first.
type FillPager interface {
	GetFillsPage(ctx context.Context, cursor int64) (*ports.FillPage, error)
}

// TradePager pages public trades newest first.
type TradePager interface {
	GetTradesPage(ctx context.Context, cursor int64) (*ports.TradePage, error)
}

// FetchFills pages the fill history and returns it oldest first.
func FetchFills(ctx context.Context, pager FillPager) ([]domain.HistoricalFill, error) {
	var pages [][]domain.HistoricalFill
	var cursor int64
	for {
		page, err := pager.GetFillsPage(ctx, cursor)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page.Fills)
		if !page.HasMore {
			break
		}
		cursor = page.Next
	}
	var out []domain.HistoricalFill
	for i := len(pages) - 1; i >= 0; i-- {
		out = append(out, pages[i]...)
	}
	return out, nil
}

// FetchTrades pages public trades back to since (Unix seconds) and returns
// them oldest first. Trades older than since are dropped.
func FetchTrades(ctx context.Context, pager TradePager, since int64) ([]domain.HistoricalTrade, error) {
	var pages [][]domain.HistoricalTrade
	var cursor int64
	for {
		page, err := pager.GetTradesPage(ctx, cursor)
		if err != nil {
			return nil, err
		}
		var kept []domain.HistoricalTrade
		reachedSince := false
		for _, t := range page.Trades {
			if t.Time < since {
				reachedSince = true
				continue
			}
			kept = append(kept, t)
		}
		pages = append(pages, kept)
		if reachedSince || !page.HasMore {
			break
		}
		cursor = page.Next
	}
	var out []domain.HistoricalTrade
	for i := len(pages) - 1; i >= 0; i-- {
		out = append(out, pages[i]...)
	}
	return out, nil
}
