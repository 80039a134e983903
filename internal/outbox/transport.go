package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

var ErrRemoteStatus = errors.New("outbox: remote returned non-success status")

// HTTPTransport calls the remote trade service's REST API:
//
//	POST   {base}/api/trades/{trader}
//	PUT    {base}/api/trades/{trader}/{id}
//	DELETE {base}/api/trades/{trader}/{id}
type HTTPTransport struct {
	BaseURL string
	Trader  string
	Client  *http.Client
}

// NewHTTPTransport creates a transport with a bounded client timeout.
func NewHTTPTransport(baseURL, trader string) *HTTPTransport {
	return &HTTPTransport{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Trader:  trader,
		Client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (t *HTTPTransport) Send(ctx context.Context, msg Message) error {
	base := t.BaseURL + "/api/trades/" + url.PathEscape(t.Trader)

	var (
		method string
		target string
		body   any
	)
	switch msg.Op {
	case OpSubmit:
		method, target, body = http.MethodPost, base, msg.Trade
	case OpUpdate:
		method, target, body = http.MethodPut, base+"/"+url.PathEscape(msg.TradeID), msg.Patch
	case OpDelete:
		method, target = http.MethodDelete, base+"/"+url.PathEscape(msg.TradeID)
	default:
		return fmt.Errorf("outbox: unknown op %q", msg.Op)
	}

	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s: %w", msg.Op, err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return err
	}
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Idempotency-Key", msg.ID)

	resp, err := t.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s %s: %d", ErrRemoteStatus, method, target, resp.StatusCode)
	}
	return nil
}

// MessageWriter is the subset of *kafka.Writer the Kafka transport uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaTransport publishes sync messages to a topic keyed by trade ID, so
// every change to one trade lands on the same partition in order.
type KafkaTransport struct {
	writer MessageWriter
	trader string
}

// NewKafkaTransport creates a transport writing to topic on brokers.
func NewKafkaTransport(brokers []string, topic, trader string) *KafkaTransport {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaTransport{writer: w, trader: trader}
}

// NewKafkaTransportWithWriter wraps an existing writer.
func NewKafkaTransportWithWriter(w MessageWriter, trader string) *KafkaTransport {
	return &KafkaTransport{writer: w, trader: trader}
}

func (t *KafkaTransport) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Op, err)
	}
	return t.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.TradeID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "op", Value: []byte(msg.Op)},
			{Key: "trader", Value: []byte(t.trader)},
			{Key: "message_id", Value: []byte(msg.ID)},
		},
	})
}

// Close flushes and closes the writer.
func (t *KafkaTransport) Close() error {
	return t.writer.Close()
}
