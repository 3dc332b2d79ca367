package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"gorm.io/gorm"

	types "github.com/yungbote/figuregen-backend/internal/domain"
	"github.com/yungbote/figuregen-backend/internal/domain/figures"
)

var assetSeq atomic.Int64

// SeedFigure inserts a pending figure; mutate tweaks it before insert.
func SeedFigure(tb testing.TB, ctx context.Context, tx *gorm.DB, mutate func(f *types.Figure)) *types.Figure {
	tb.Helper()
	f := &types.Figure{
		AssetID:      fmt.Sprintf("lesson-%d", assetSeq.Add(1)),
		LessonTitle:  "Fractions",
		CleanedXHTML: "A pizza cut into eight equal slices.",
		CurrentState: figures.StatePending,
	}
	if mutate != nil {
		mutate(f)
	}
	if err := tx.WithContext(ctx).Create(f).Error; err != nil {
		tb.Fatalf("seed figure: %v", err)
	}
	return f
}
