package providers

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type stubClient struct {
	name string
	text string
	err  error
}

func (s *stubClient) Name() string { return s.name }

func (s *stubClient) Complete(ctx context.Context, req Request) (string, error) {
	return s.text, s.err
}

func TestInstrument(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	ok := Instrument(&stubClient{name: NameOpenAI, text: "hi"}, "chat", m)
	limited := Instrument(&stubClient{name: NameGemini, err: &Error{Kind: KindRateLimited}}, "title", m)
	noKey := Instrument(&stubClient{name: NameGemini, err: &Error{Kind: KindMissingCredential}}, "chat", m)

	ok.Complete(context.Background(), Request{})
	ok.Complete(context.Background(), Request{})
	limited.Complete(context.Background(), Request{})
	noKey.Complete(context.Background(), Request{})

	if got := testutil.ToFloat64(m.requests.WithLabelValues(NameOpenAI, "chat", "success")); got != 2 {
		t.Errorf("expected 2 successes, got %v", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues(NameGemini, "title", "rate_limited")); got != 1 {
		t.Errorf("expected 1 rate limited, got %v", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues(NameGemini, "chat", "missing_credential")); got != 0 {
		t.Errorf("missing credential calls must not be recorded, got %v", got)
	}
	if ok.Name() != NameOpenAI {
		t.Errorf("wrapper must keep the provider name, got %q", ok.Name())
	}
}

func TestInstrument_NilMetrics(t *testing.T) {
	c := &stubClient{name: NameOpenAI}
	if Instrument(c, "chat", nil) != Client(c) {
		t.Error("nil metrics should return the client unchanged")
	}
}
