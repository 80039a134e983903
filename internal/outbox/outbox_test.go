package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energydesk/market-engine/internal/model"
)

type flakyTransport struct {
	mu       sync.Mutex
	failures int
	sent     []Message
	calls    int
}

func (f *flakyTransport) Send(_ context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("connection refused")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func sampleTrade() model.Trade {
	return model.Trade{
		ID: "01TRADE", Hub: "Henry Hub", Direction: model.Buy,
		Volume: decimal.NewFromInt(10000), EntryPrice: 2.75, Status: model.StatusOpen,
	}
}

func TestOutbox_DeliversInOrder(t *testing.T) {
	tr := &flakyTransport{}
	o := New(tr, Policy{})

	o.Submit(sampleTrade())
	o.Update("01TRADE", model.TradePatch{})
	o.Delete("01TRADE")
	assert.Equal(t, 3, o.Len())

	n := o.Drain(context.Background())
	assert.Equal(t, 3, n)
	require.Len(t, tr.sent, 3)
	assert.Equal(t, []Op{OpSubmit, OpUpdate, OpDelete}, []Op{tr.sent[0].Op, tr.sent[1].Op, tr.sent[2].Op})
	assert.NotEmpty(t, tr.sent[0].ID)
	assert.NotEqual(t, tr.sent[0].ID, tr.sent[1].ID)
	assert.Equal(t, int64(3), o.Stats().Delivered)
}

func TestOutbox_RetriesThenSucceeds(t *testing.T) {
	tr := &flakyTransport{failures: 2}
	o := New(tr, Policy{MaxAttempts: 3, Backoff: time.Millisecond})
	o.Submit(sampleTrade())
	o.Drain(context.Background())

	require.Len(t, tr.sent, 1)
	assert.Equal(t, 3, tr.sent[0].Attempts)
	st := o.Stats()
	assert.Equal(t, int64(2), st.Retried)
	assert.Equal(t, int64(1), st.Delivered)
	assert.Zero(t, st.Dropped)
}

func TestOutbox_DropsAfterMaxAttempts(t *testing.T) {
	tr := &flakyTransport{failures: 10}
	o := New(tr, Policy{MaxAttempts: 2, Backoff: time.Millisecond})
	o.Delete("x")
	o.Drain(context.Background())

	assert.Empty(t, tr.sent)
	assert.Equal(t, 2, tr.calls)
	assert.Equal(t, int64(1), o.Stats().Dropped)
}

func TestOutbox_FullQueueNeverBlocks(t *testing.T) {
	o := New(&flakyTransport{}, Policy{QueueSize: 1})
	o.Delete("a")
	o.Delete("b")
	assert.Equal(t, 1, o.Len())
	assert.Equal(t, int64(1), o.Stats().Dropped)
}

func TestOutbox_StartAndStop(t *testing.T) {
	tr := &flakyTransport{}
	o := New(tr, Policy{})
	ctx, cancel := context.WithCancel(context.Background())
	o.Start(ctx)
	o.Submit(sampleTrade())

	require.Eventually(t, func() bool {
		return o.Stats().Delivered == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	o.Wait()
}

func TestHTTPTransport(t *testing.T) {
	type call struct {
		method, path, ctype, key string
		body                     []byte
	}
	var (
		mu    sync.Mutex
		calls []call
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		calls = append(calls, call{r.Method, r.URL.EscapedPath(), r.Header.Get("Content-Type"), r.Header.Get("Idempotency-Key"), body})
		mu.Unlock()
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL+"/", "j doe")
	ctx := context.Background()
	trade := sampleTrade()
	closed := model.StatusClosed

	require.NoError(t, tr.Send(ctx, Message{ID: "m1", Op: OpSubmit, TradeID: trade.ID, Trade: &trade}))
	require.NoError(t, tr.Send(ctx, Message{ID: "m2", Op: OpUpdate, TradeID: trade.ID, Patch: &model.TradePatch{Status: &closed}}))
	err := tr.Send(ctx, Message{ID: "m3", Op: OpDelete, TradeID: trade.ID})
	assert.ErrorIs(t, err, ErrRemoteStatus)
	assert.Error(t, tr.Send(ctx, Message{Op: "bogus"}))

	require.Len(t, calls, 3)
	assert.Equal(t, http.MethodPost, calls[0].method)
	assert.Equal(t, "/api/trades/j%20doe", calls[0].path)
	assert.Equal(t, "application/json", calls[0].ctype)
	assert.Equal(t, "m1", calls[0].key)
	var got model.Trade
	require.NoError(t, json.Unmarshal(calls[0].body, &got))
	assert.Equal(t, trade.ID, got.ID)

	assert.Equal(t, http.MethodPut, calls[1].method)
	assert.Equal(t, "/api/trades/j%20doe/01TRADE", calls[1].path)
	assert.JSONEq(t, `{"status":"CLOSED"}`, string(calls[1].body))

	assert.Equal(t, http.MethodDelete, calls[2].method)
	assert.Empty(t, calls[2].body)
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, m ...kafka.Message) error {
	f.msgs = append(f.msgs, m...)
	return f.err
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaTransport(t *testing.T) {
	w := &fakeWriter{}
	tr := NewKafkaTransportWithWriter(w, "alice")
	trade := sampleTrade()

	require.NoError(t, tr.Send(context.Background(), Message{ID: "m1", Op: OpSubmit, TradeID: trade.ID, Trade: &trade}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("01TRADE"), w.msgs[0].Key)
	var decoded Message
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, OpSubmit, decoded.Op)
	assert.Equal(t, "01TRADE", decoded.Trade.ID)

	headers := map[string]string{}
	for _, h := range w.msgs[0].Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "submit", headers["op"])
	assert.Equal(t, "alice", headers["trader"])

	w.err = errors.New("broker down")
	assert.Error(t, tr.Send(context.Background(), Message{Op: OpDelete, TradeID: "x"}))
	assert.NoError(t, tr.Close())
}
