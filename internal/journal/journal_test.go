package journal

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ladder_bot/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")

	j, err := OpenCSV(path)
	require.NoError(t, err)

	order := models.Order{
		ID:        "7",
		Symbol:    "BTCUSDT",
		Side:      models.SideSell,
		Kind:      models.KindLimit,
		Price:     decimal.RequireFromString("101"),
		Amount:    decimal.RequireFromString("1"),
		Filled:    decimal.RequireFromString("1"),
		Status:    models.StatusClosed,
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, j.Record(context.Background(), FromOrder(order, decimal.RequireFromString("1"))))
	require.NoError(t, j.Close())

	// повторное открытие не дублирует заголовок
	j, err = OpenCSV(path)
	require.NoError(t, err)
	order.ID = "8"
	order.Status = models.StatusOpen
	require.NoError(t, j.Record(context.Background(), FromOrder(order, decimal.Zero)))
	require.NoError(t, j.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{"2024-01-02T03:04:05Z", "BTCUSDT", "7", "SELL", "LIMIT", "closed", "101", "1", "1", "0", "1"}, rows[1])
	assert.Equal(t, "8", rows[2][2])
	assert.Equal(t, "open", rows[2][5])
}

type failing struct{ calls int }

func (f *failing) Record(context.Context, Entry) error {
	f.calls++
	return errors.New("disk full")
}

func TestMultiWritesAll(t *testing.T) {
	bad := &failing{}
	path := filepath.Join(t.TempDir(), "trades.csv")
	good, err := OpenCSV(path)
	require.NoError(t, err)
	defer good.Close()

	err = Multi{bad, good, Nop{}}.Record(context.Background(), Entry{Time: time.Now()})
	assert.Error(t, err)
	assert.Equal(t, 1, bad.calls)

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, st.Size(), int64(len("time,symbol")))
}
