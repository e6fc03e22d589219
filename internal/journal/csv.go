package journal

import (
	"context"
	"encoding/csv"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var csvHeader = []string{"time", "symbol", "id", "side", "kind", "status", "price", "amount", "filled", "cost", "profit"}

// CSV пишет журнал в файл, по строке на событие.
type CSV struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
}

func OpenCSV(path string) (*CSV, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open trade journal")
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "stat trade journal")
	}

	j := &CSV{file: f, w: csv.NewWriter(f)}
	if st.Size() == 0 {
		if err := j.w.Write(csvHeader); err != nil {
			_ = f.Close()
			return nil, errors.Wrap(err, "write journal header")
		}
		j.w.Flush()
	}
	return j, nil
}

func (j *CSV) Record(_ context.Context, e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	row := []string{
		e.Time.Format(time.RFC3339Nano),
		e.Symbol,
		e.OrderID,
		string(e.Side),
		string(e.Kind),
		e.Status.String(),
		e.Price.String(),
		e.Amount.String(),
		e.Filled.String(),
		e.Cost.String(),
		e.Profit.String(),
	}
	if err := j.w.Write(row); err != nil {
		return errors.Wrap(err, "write journal row")
	}
	j.w.Flush()
	return errors.Wrap(j.w.Error(), "flush journal")
}

func (j *CSV) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.w.Flush()
	return j.file.Close()
}
