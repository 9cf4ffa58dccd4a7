package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/faciam-dev/gcadmin/internal/action"
	"github.com/faciam-dev/gcadmin/pkg/descriptor"
)

type flakySink struct {
	mu    sync.Mutex
	fails int
	calls int
	got   []Event
}

func (s *flakySink) Emit(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.fails {
		return errors.New("unavailable")
	}
	s.got = append(s.got, e)
	return nil
}

type memDLQ struct {
	mu     sync.Mutex
	stored []string
}

func (q *memDLQ) Store(_ context.Context, e Event, attempts int, lastErr string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stored = append(q.stored, e.ID+":"+lastErr)
	return nil
}

func retryConfig(n int) Config {
	var c Config
	c.Retry = RetryConfig{MaxAttempts: n, InitialDelay: time.Millisecond}
	return c
}

func TestDispatcherRetriesThenDLQ(t *testing.T) {
	ok := &flakySink{fails: 2}
	broken := &flakySink{fails: 100}
	dlq := &memDLQ{}
	d := NewDispatcher(retryConfig(3), dlq, ok, broken)
	e := NewEvent("action.completed", "blog.post", nil)
	d.Dispatch(context.Background(), e)
	d.Wait()

	if ok.calls != 3 || len(ok.got) != 1 || ok.got[0].ID != e.ID {
		t.Fatalf("retrying sink: calls=%d got=%v", ok.calls, ok.got)
	}
	if broken.calls != 3 {
		t.Fatalf("broken sink called %d times", broken.calls)
	}
	if len(dlq.stored) != 1 || dlq.stored[0] != e.ID+":unavailable" {
		t.Fatalf("dlq %v", dlq.stored)
	}
}

func TestDispatchSurvivesCancel(t *testing.T) {
	s := &flakySink{}
	d := NewDispatcher(retryConfig(1), nil, s)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Dispatch(ctx, NewEvent("x", "", nil))
	d.Wait()
	if len(s.got) != 1 {
		t.Fatalf("event lost after cancel")
	}
}

func TestObserveAction(t *testing.T) {
	s := &flakySink{}
	d := NewDispatcher(retryConfig(1), nil, s)
	d.ObserveAction(context.Background(), action.Record{
		Kind:   action.KindCompleted,
		RunID:  "r1",
		Model:  descriptor.ModelID{App: "blog", Model: "post"},
		Action: "publish",
		Total:  4,
		Result: &action.Result{OK: false, Affected: 3, Skipped: 1, Errors: []action.RowError{{PK: 2, Message: "boom"}}},
	})
	d.Wait()
	if len(s.got) != 1 {
		t.Fatalf("expected one event")
	}
	e := s.got[0]
	data := e.Data.(ActionData)
	if e.Name != action.KindCompleted || e.Key != "blog.post" || data.Affected != 3 || data.Errors != 1 || data.OK == nil || *data.OK {
		t.Fatalf("unexpected event %+v", e)
	}

	var nilDisp *Dispatcher
	nilDisp.ObserveAction(context.Background(), action.Record{})
}

func TestWebhookSinkSigns(t *testing.T) {
	var body []byte
	var sig, name string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		sig = r.Header.Get(SignatureHeader)
		name = r.Header.Get("X-Admin-Event")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewWebhookSink(WebhookConfig{Enabled: true, Endpoint: srv.URL, Secret: "s3cret"})
	if err := s.Emit(context.Background(), NewEvent("action.dispatched", "blog.post", map[string]any{"n": 1})); err != nil {
		t.Fatal(err)
	}
	if sig != Sign("s3cret", body) || name != "action.dispatched" {
		t.Fatalf("signature %q name %q", sig, name)
	}

	fail := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer fail.Close()
	s.Endpoint = fail.URL
	if err := s.Emit(context.Background(), NewEvent("x", "", nil)); err == nil {
		t.Fatal("expected error for 502")
	}
	if NewWebhookSink(WebhookConfig{Endpoint: srv.URL}) != nil {
		t.Fatal("disabled webhook should be nil")
	}
}

func TestRedisSinkPublishes(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisSink(RedisConfig{Enabled: true, DSN: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatal(err)
	}
	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()}).Subscribe(context.Background(), DefaultRedisChannel)
	defer sub.Close()
	if _, err := sub.Receive(context.Background()); err != nil {
		t.Fatal(err)
	}
	e := NewEvent("action.completed", "blog.post", nil)
	if err := s.Emit(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	select {
	case msg := <-sub.Channel():
		var got Event
		if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
			t.Fatal(err)
		}
		if got.ID != e.ID {
			t.Fatalf("unexpected event %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
	}
}

func TestKafkaSinkKeysByModel(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	prod := mocks.NewAsyncProducer(t, cfg)
	prod.ExpectInputWithMessageCheckerFunctionAndSucceed(func(m *sarama.ProducerMessage) error {
		k, err := m.Key.Encode()
		if err != nil {
			return err
		}
		if string(k) != "blog.post" || m.Topic != "admin-events" {
			return errors.New("unexpected key or topic")
		}
		return nil
	})
	s := &KafkaSink{Producer: prod, Topic: "admin-events"}
	if err := s.Emit(context.Background(), NewEvent("action.completed", "blog.post", nil)); err != nil {
		t.Fatal(err)
	}
	select {
	case <-prod.Successes():
	case <-time.After(2 * time.Second):
		t.Fatal("message not produced")
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSQLDLQ(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	e := NewEvent("action.failed", "blog.post", nil)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO gcadmin_events_failed(event_id, name, payload, attempts, last_error) VALUES ($1, $2, $3, $4, $5)")).
		WithArgs(e.ID, e.Name, sqlmock.AnyArg(), 3, "boom").
		WillReturnResult(sqlmock.NewResult(1, 1))
	q := &SQLDLQ{DB: db, Driver: "postgres", TablePrefix: "gcadmin_"}
	if err := q.Store(context.Background(), e, 3, "boom"); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestBuildSkipsDisabledSinks(t *testing.T) {
	d, err := Build(Config{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.Len() != 0 {
		t.Fatalf("expected no sinks, got %d", d.Len())
	}
}
