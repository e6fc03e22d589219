package exchange

import (
	"context"
	"strconv"
	"strings"
	"time"

	"ladder_bot/internal/models"
	"ladder_bot/pkg/retry"

	"github.com/adshao/go-binance/v2"
	"github.com/bytedance/sonic"
	"github.com/bytedance/sonic/ast"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	streamMainURL    = "wss://stream.binance.com:9443/ws/"
	streamTestnetURL = "wss://stream.testnet.binance.vision/ws/"
	listenKeyRefresh = 30 * time.Minute
)

// Stream: пользовательский поток Binance: executionReport по нашей паре.
// Дополняет опрос, дубли безопасны благодаря идемпотентности монитора.
type Stream struct {
	client   *binance.Client
	symbol   string
	baseURL  string
	dialer   *websocket.Dialer
	log      *zap.Logger
	backoff  retry.Backoff
	onStatus func(connected bool)
}

func NewStream(b *Binance, testnet bool, log *zap.Logger) *Stream {
	base := streamMainURL
	if testnet {
		base = streamTestnetURL
	}
	return &Stream{
		client:   b.Client(),
		symbol:   b.Symbol(),
		baseURL:  base,
		dialer:   websocket.DefaultDialer,
		log:      log,
		backoff:  retry.Linear(time.Second, time.Minute),
		onStatus: func(bool) {},
	}
}

// OnStatus: колбэк на подключение/разрыв (для health).
func (s *Stream) OnStatus(fn func(connected bool)) {
	if fn != nil {
		s.onStatus = fn
	}
}

// Updates возвращает поток снимков ордеров. Канал закрывается при отмене ctx.
func (s *Stream) Updates(ctx context.Context) <-chan models.Order {
	ch := make(chan models.Order)
	go func() {
		defer close(ch)

		for attempt := 0; ; attempt++ {
			err := s.session(ctx, ch)
			s.onStatus(false)
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("user stream dropped", zap.Error(err), zap.Int("attempt", attempt))
			if !retry.Sleep(ctx, s.backoff(attempt)) {
				return
			}
		}
	}()
	return ch
}

func (s *Stream) session(ctx context.Context, ch chan<- models.Order) error {
	key, err := s.client.NewStartUserStreamService().Do(ctx)
	if err != nil {
		return classify("listenKey", err)
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.client.NewCloseUserStreamService().ListenKey(key).Do(cctx)
	}()

	conn, _, err := s.dialer.DialContext(ctx, s.baseURL+key, nil)
	if err != nil {
		return err
	}
	s.onStatus(true)
	s.log.Info("user stream connected", zap.String("symbol", s.symbol))

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// listenKey живёт 60 минут без продления
	go func() {
		t := time.NewTicker(listenKeyRefresh)
		defer t.Stop()
		for {
			select {
			case <-sctx.Done():
				_ = conn.Close()
				return
			case <-t.C:
				if err := s.client.NewKeepaliveUserStreamService().ListenKey(key).Do(sctx); err != nil {
					s.log.Warn("listenKey keepalive failed", zap.Error(err))
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		o, ok := parseExecutionReport(msg, s.symbol)
		if !ok {
			continue
		}
		select {
		case ch <- o:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// parseExecutionReport разбирает событие executionReport. Ключи отличаются
// только регистром ("e"/"E"), поэтому читаем через ast, а не через теги структуры.
func parseExecutionReport(msg []byte, symbol string) (models.Order, bool) {
	root, err := sonic.Get(msg)
	if err != nil {
		return models.Order{}, false
	}
	if str(root.Get("e")) != "executionReport" || !strings.EqualFold(str(root.Get("s")), symbol) {
		return models.Order{}, false
	}

	kind := models.Kind(str(root.Get("o")))
	filled := dec(root.Get("z"))
	cost := dec(root.Get("Z"))
	id, err := root.Get("i").Int64()
	if err != nil {
		return models.Order{}, false
	}
	created, _ := root.Get("O").Int64()

	return models.Order{
		ID:        strconv.FormatInt(id, 10),
		Symbol:    str(root.Get("s")),
		Side:      models.Side(str(root.Get("S"))),
		Kind:      kind,
		Price:     avgPrice(kind, dec(root.Get("p")), filled, cost),
		Amount:    dec(root.Get("q")),
		Filled:    filled,
		Cost:      cost,
		Status:    ParseStatus(str(root.Get("X"))),
		Timestamp: time.UnixMilli(created),
	}, true
}

func str(n *ast.Node) string {
	if n == nil || !n.Exists() {
		return ""
	}
	s, err := n.String()
	if err != nil {
		return ""
	}
	return s
}

func dec(n *ast.Node) decimal.Decimal {
	d, err := decimal.NewFromString(str(n))
	if err != nil {
		return decimal.Zero
	}
	return d
}
