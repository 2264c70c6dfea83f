package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/wonny/signalhub/internal/contracts"
	"github.com/wonny/signalhub/internal/realtime"
	"github.com/wonny/signalhub/internal/realtime/cache"
)

const (
	// MaxStreamAssets 한 연결에서 구독하는 최대 자산 수
	MaxStreamAssets = 200

	// Reconnect settings
	reconnectDelay    = 5 * time.Second
	maxReconnectDelay = 5 * time.Minute

	// Ping/Pong settings
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

// BinanceStream manages miniTicker subscriptions over the Binance combined stream
// ⭐ SSOT: 웹소켓 연결 및 구독 자산 관리는 이 클라이언트에서만
// 수신한 틱은 PriceCache 에 기록되고 CurrentPrice 는 캐시만 읽는다
type BinanceStream struct {
	url           string
	log           zerolog.Logger
	cache         *cache.PriceCache
	priorityQueue *PriorityQueue
	maxAssets     int

	conn    *websocket.Conn
	connMu  sync.RWMutex
	writeMu sync.Mutex
	msgID   atomic.Int64

	// symbol(BTCUSDT) -> assets, 구독 중인 스트림
	symbolAssets map[string]map[string]bool
	active       map[string]bool
	symbolsMu    sync.RWMutex

	connected    atomic.Bool
	stopCh       chan struct{}
	doneCh       chan struct{}
	stopOnce     sync.Once
	reconnecting bool
	reconnectMu  sync.Mutex
}

// NewBinanceStream creates a new stream client
func NewBinanceStream(wsURL string, priceCache *cache.PriceCache, log zerolog.Logger) *BinanceStream {
	return &BinanceStream{
		url:           wsURL,
		log:           log.With().Str("component", "feed.binance_ws").Logger(),
		cache:         priceCache,
		priorityQueue: NewPriorityQueue(),
		maxAssets:     MaxStreamAssets,
		symbolAssets:  make(map[string]map[string]bool),
		active:        make(map[string]bool),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Name returns the provider name
func (s *BinanceStream) Name() string { return string(realtime.SourceBinanceWS) }

// Start connects and launches the read/ping loops
// 최초 연결 실패는 치명적이지 않음: 백그라운드에서 재연결
func (s *BinanceStream) Start(ctx context.Context) {
	s.log.Info().Str("url", s.url).Msg("starting stream")

	if err := s.connect(ctx); err != nil {
		s.log.Warn().Err(err).Msg("initial connection failed, retrying in background")
	}

	go s.readLoop(ctx)
	go s.pingLoop(ctx)
}

// Stop closes the connection and waits for the read loop
func (s *BinanceStream) Stop() {
	s.stopOnce.Do(func() {
		s.log.Info().Msg("stopping stream")
		close(s.stopCh)

		s.connMu.Lock()
		if s.conn != nil {
			_ = s.conn.Close()
		}
		s.connMu.Unlock()

		<-s.doneCh
	})
}

// Connected reports whether the socket is currently up
func (s *BinanceStream) Connected() bool {
	return s.connected.Load()
}

// Watch updates the subscription priority of an asset (0 = no open signals)
func (s *BinanceStream) Watch(asset string, openSignals int) {
	symbol, err := binanceSymbol(asset)
	if err != nil {
		return
	}

	s.symbolsMu.Lock()
	if openSignals > 0 {
		if s.symbolAssets[symbol] == nil {
			s.symbolAssets[symbol] = make(map[string]bool)
		}
		s.symbolAssets[symbol][asset] = true
	} else if assets := s.symbolAssets[symbol]; assets != nil {
		delete(assets, asset)
		if len(assets) == 0 {
			delete(s.symbolAssets, symbol)
		}
	}
	s.symbolsMu.Unlock()

	if openSignals > 0 {
		s.priorityQueue.Update(&realtime.AssetPriority{Asset: symbol, OpenSignals: openSignals, LastSeen: time.Now()})
	} else if !s.hasAssets(symbol) {
		s.priorityQueue.Remove(symbol)
	}
	s.rebalance()
}

// CurrentPrice returns the cached stream tick, ErrUnavailable when stale or absent
func (s *BinanceStream) CurrentPrice(_ context.Context, asset string) (contracts.PriceTick, error) {
	tick, ok := s.cache.Fresh(asset)
	if !ok || tick.Source != s.Name() {
		return contracts.PriceTick{}, fmt.Errorf("%w: no fresh stream tick for %s", realtime.ErrUnavailable, asset)
	}
	return tick, nil
}

// PriceHistory is not served by the stream
func (s *BinanceStream) PriceHistory(context.Context, string, time.Duration) ([]contracts.PriceTick, error) {
	return nil, fmt.Errorf("%w: stream has no history", realtime.ErrUnavailable)
}

// ActiveSymbols returns the currently subscribed symbols
func (s *BinanceStream) ActiveSymbols() []string {
	s.symbolsMu.RLock()
	defer s.symbolsMu.RUnlock()

	out := make([]string, 0, len(s.active))
	for symbol := range s.active {
		out = append(out, symbol)
	}
	return out
}

func (s *BinanceStream) hasAssets(symbol string) bool {
	s.symbolsMu.RLock()
	defer s.symbolsMu.RUnlock()
	return len(s.symbolAssets[symbol]) > 0
}

// connect establishes the WebSocket connection and resubscribes
func (s *BinanceStream) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	s.connected.Store(true)

	// 새 연결은 구독이 없음
	s.symbolsMu.Lock()
	s.active = make(map[string]bool)
	s.symbolsMu.Unlock()

	s.log.Info().Msg("connected")
	s.rebalance()
	return nil
}

func (s *BinanceStream) currentConn() *websocket.Conn {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.conn
}

// readLoop reads messages from WebSocket
func (s *BinanceStream) readLoop(ctx context.Context) {
	defer close(s.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		conn := s.currentConn()
		if conn == nil {
			s.handleDisconnect(ctx)
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
			}
			s.log.Warn().Err(err).Msg("read failed")
			s.handleDisconnect(ctx)
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if err := s.handleMessage(message); err != nil {
			s.log.Debug().Err(err).Msg("failed to handle message")
		}
	}
}

// streamEnvelope combined stream 메시지
type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// miniTicker 24hrMiniTicker 이벤트
type miniTicker struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
}

// handleMessage converts a miniTicker event into cache updates
func (s *BinanceStream) handleMessage(message []byte) error {
	var env streamEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}
	if len(env.Data) == 0 {
		// 구독 응답 {"result":null,"id":1}
		return nil
	}

	var ev miniTicker
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		return fmt.Errorf("unmarshal ticker: %w", err)
	}
	price, err := strconv.ParseFloat(ev.Close, 64)
	if err != nil || price <= 0 {
		return fmt.Errorf("bad close price %q", ev.Close)
	}
	at := time.UnixMilli(ev.EventTime).UTC()

	s.symbolsMu.RLock()
	assets := make([]string, 0, len(s.symbolAssets[ev.Symbol]))
	for asset := range s.symbolAssets[ev.Symbol] {
		assets = append(assets, asset)
	}
	s.symbolsMu.RUnlock()

	for _, asset := range assets {
		s.cache.Update(contracts.PriceTick{Asset: asset, Price: price, Timestamp: at, Source: s.Name()})
	}
	return nil
}

// handleDisconnect handles WebSocket disconnection and reconnects
func (s *BinanceStream) handleDisconnect(ctx context.Context) {
	s.reconnectMu.Lock()
	if s.reconnecting {
		s.reconnectMu.Unlock()
		return
	}
	s.reconnecting = true
	s.reconnectMu.Unlock()

	defer func() {
		s.reconnectMu.Lock()
		s.reconnecting = false
		s.reconnectMu.Unlock()
	}()

	s.connected.Store(false)
	s.connMu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()

	delay := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-time.After(delay):
		}

		if err := s.connect(ctx); err != nil {
			s.log.Warn().Err(err).Dur("delay", delay).Msg("reconnect failed, retrying")

			// Exponential backoff
			delay *= 2
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
			continue
		}

		s.log.Info().Msg("reconnected")
		return
	}
}

// pingLoop sends periodic pings to keep connection alive
func (s *BinanceStream) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			conn := s.currentConn()
			if conn == nil {
				continue
			}
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				s.log.Debug().Err(err).Msg("failed to send ping")
			}
		}
	}
}

// rebalance keeps the top-N priority symbols subscribed
func (s *BinanceStream) rebalance() {
	top := s.priorityQueue.Top(s.maxAssets)

	wanted := make(map[string]bool, len(top))
	for _, p := range top {
		wanted[p.Asset] = true
	}

	s.symbolsMu.RLock()
	var toRemove, toAdd []string
	for symbol := range s.active {
		if !wanted[symbol] {
			toRemove = append(toRemove, symbol)
		}
	}
	for symbol := range wanted {
		if !s.active[symbol] {
			toAdd = append(toAdd, symbol)
		}
	}
	s.symbolsMu.RUnlock()

	if len(toRemove) > 0 {
		if s.send("UNSUBSCRIBE", toRemove) {
			s.markActive(toRemove, false)
		}
	}
	if len(toAdd) > 0 {
		if s.send("SUBSCRIBE", toAdd) {
			s.markActive(toAdd, true)
		}
	}

	if len(toAdd) > 0 || len(toRemove) > 0 {
		s.log.Debug().Int("added", len(toAdd)).Int("removed", len(toRemove)).Int("total", len(wanted)).Msg("rebalanced subscriptions")
	}
}

func (s *BinanceStream) markActive(symbols []string, on bool) {
	s.symbolsMu.Lock()
	defer s.symbolsMu.Unlock()
	for _, symbol := range symbols {
		if on {
			s.active[symbol] = true
		} else {
			delete(s.active, symbol)
		}
	}
}

// send writes a SUBSCRIBE/UNSUBSCRIBE request
func (s *BinanceStream) send(method string, symbols []string) bool {
	conn := s.currentConn()
	if conn == nil {
		return false
	}

	params := make([]string, len(symbols))
	for i, symbol := range symbols {
		params[i] = strings.ToLower(symbol) + "@miniTicker"
	}
	req := map[string]interface{}{
		"method": method,
		"params": params,
		"id":     s.msgID.Add(1),
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(req); err != nil {
		s.log.Warn().Err(err).Str("method", method).Msg("subscription request failed")
		return false
	}
	return true
}
