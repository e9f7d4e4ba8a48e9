package message

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
)

func TestDispatch(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	t.Run("record reaches store, buffer and handlers", func(t *testing.T) {
		st := &fakeStore{}
		d := NewDispatcher(DispatchConfig{}, st, nil, nil, logger)

		var handled []*Record
		d.RegisterHandler(func(rec *Record) { handled = append(handled, rec) })

		d.Dispatch(context.Background(), &Record{ID: "m1", Body: "hi"})

		if len(st.records) != 1 {
			t.Errorf("expected 1 persisted record, got %d", len(st.records))
		}
		if d.Buffer().Len() != 1 {
			t.Errorf("expected 1 buffered record, got %d", d.Buffer().Len())
		}
		if len(handled) != 1 {
			t.Errorf("expected 1 handled record, got %d", len(handled))
		}
	})

	t.Run("store failure does not abort the pipeline", func(t *testing.T) {
		st := &fakeStore{err: fmt.Errorf("disk full")}
		d := NewDispatcher(DispatchConfig{}, st, nil, nil, logger)

		var handled int
		d.RegisterHandler(func(*Record) { handled++ })

		d.Dispatch(context.Background(), &Record{ID: "m1"})

		if handled != 1 {
			t.Errorf("expected handler to run despite store failure, got %d calls", handled)
		}
		if d.Buffer().Len() != 1 {
			t.Error("expected record buffered despite store failure")
		}
	})

	t.Run("panicking handler does not stop later handlers", func(t *testing.T) {
		d := NewDispatcher(DispatchConfig{}, nil, nil, nil, logger)

		var ran []string
		d.RegisterHandler(func(*Record) { ran = append(ran, "first") })
		d.RegisterHandler(func(*Record) { panic("boom") })
		d.RegisterHandler(func(*Record) { ran = append(ran, "third") })

		d.Dispatch(context.Background(), &Record{ID: "m1"})

		if len(ran) != 2 || ran[1] != "third" {
			t.Errorf("expected first and third handlers to run, got %v", ran)
		}
	})

	t.Run("handlers run in registration order", func(t *testing.T) {
		d := NewDispatcher(DispatchConfig{}, nil, nil, nil, logger)

		var order []int
		for i := 0; i < 4; i++ {
			i := i
			d.RegisterHandler(func(*Record) { order = append(order, i) })
		}
		d.Dispatch(context.Background(), &Record{ID: "m1"})

		for i, v := range order {
			if v != i {
				t.Fatalf("expected registration order, got %v", order)
			}
		}
	})

	t.Run("nil record is ignored", func(t *testing.T) {
		st := &fakeStore{}
		d := NewDispatcher(DispatchConfig{}, st, nil, nil, logger)
		d.Dispatch(context.Background(), nil)
		if len(st.records) != 0 {
			t.Error("expected nothing persisted for nil record")
		}
	})
}

func TestAutoRespondPolicy(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	dispatch := func(t *testing.T, cfg DispatchConfig, rec *Record) bool {
		t.Helper()
		resp := &fakeResponder{}
		d := NewDispatcher(cfg, nil, nil, nil, logger)
		d.SetResponder(resp)
		d.Dispatch(context.Background(), rec)
		return resp.calls == 1
	}

	t.Run("inbound direct message is eligible", func(t *testing.T) {
		if !dispatch(t, DispatchConfig{}, &Record{ID: "m1"}) {
			t.Error("expected responder invoked")
		}
	})

	t.Run("own messages never trigger replies", func(t *testing.T) {
		if dispatch(t, DispatchConfig{}, &Record{ID: "m1", FromMe: true}) {
			t.Error("expected responder skipped for own message")
		}
	})

	t.Run("group messages skipped by default", func(t *testing.T) {
		if dispatch(t, DispatchConfig{}, &Record{ID: "m1", IsGroup: true}) {
			t.Error("expected responder skipped for group message")
		}
	})

	t.Run("group messages eligible when enabled", func(t *testing.T) {
		if !dispatch(t, DispatchConfig{RespondToGroups: true}, &Record{ID: "m1", IsGroup: true}) {
			t.Error("expected responder invoked with groups enabled")
		}
	})
}

// Test helper types

type fakeStore struct {
	mu      sync.Mutex
	records []*Record
	err     error
}

func (f *fakeStore) UpsertMessage(rec *Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

type fakeResponder struct {
	calls int
}

func (f *fakeResponder) MatchAndRespond(_ context.Context, _ *Record) {
	f.calls++
}
