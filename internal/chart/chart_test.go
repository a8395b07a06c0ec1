package chart

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/skinwatch/internal/domain"
)

func series(n int) []domain.Snapshot {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.Snapshot, n)
	for i := range out {
		out[i] = domain.Snapshot{
			Subject:   domain.PortfolioTotalSubject,
			Value:     decimal.NewFromInt(int64(1000 + i*10)),
			Timestamp: start.Add(time.Duration(i) * time.Hour),
		}
	}
	return out
}

func TestRenderHistory(t *testing.T) {
	pngMagic := []byte{0x89, 'P', 'N', 'G'}

	tests := []struct {
		name    string
		points  int
		wantErr error
	}{
		{name: "empty", points: 0, wantErr: ErrNotEnoughPoints},
		{name: "single point", points: 1, wantErr: ErrNotEnoughPoints},
		{name: "two points", points: 2},
		{name: "with average", points: 20},
		{name: "truncated to most recent", points: MaxPoints + 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := RenderHistory(series(tt.points))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, img)
				return
			}
			require.NoError(t, err)
			assert.True(t, bytes.HasPrefix(img, pngMagic))
		})
	}
}
