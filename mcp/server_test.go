package mcp

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/ka2n/mcp-servers/config"
	"github.com/ka2n/mcp-servers/metrics"
)

var cmpSorted = cmpopts.SortSlices(func(a, b string) bool { return a < b })

func TestRunStdioEOF(t *testing.T) {
	var out bytes.Buffer
	s := NewMongoServer(&fakeStore{readOnly: true}, WithStdio(strings.NewReader(""), &out))

	if err := s.Run(context.Background()); err != nil {
		t.Errorf("Run() error = %v", err)
	}
}

func TestRunStdioCanceled(t *testing.T) {
	in, w := io.Pipe()
	defer w.Close()
	s := NewMongoServer(&fakeStore{readOnly: true}, WithStdio(in, io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestHandler(t *testing.T) {
	tests := []struct {
		name        string
		metricsOn   bool
		wantMetrics int
	}{
		{name: "metrics enabled", metricsOn: true, wantMetrics: http.StatusOK},
		{name: "metrics disabled", metricsOn: false, wantMetrics: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMongoServer(&fakeStore{},
				WithTransport(config.Server{Transport: config.TransportHTTP, HTTPAddr: ":0", Metrics: tt.metricsOn}),
				WithMetrics(metrics.NewCollector()),
			)
			srv := httptest.NewServer(s.Handler())
			defer srv.Close()

			resp, err := http.Get(srv.URL + "/metrics")
			if err != nil {
				t.Fatalf("GET /metrics error = %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.wantMetrics {
				t.Errorf("GET /metrics status = %d, want %d", resp.StatusCode, tt.wantMetrics)
			}
		})
	}
}

func TestRunHTTPStopsOnCancel(t *testing.T) {
	s := NewArxivServer(&fakeSearcher{}, nil,
		WithTransport(config.Server{Transport: config.TransportHTTP, HTTPAddr: "127.0.0.1:0"}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
