package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/example/go-kokoro-tts/internal/config"
)

func stringsReader(s string) io.Reader { return strings.NewReader(s) }

func TestStart_LifecycleHealthAndShutdown(t *testing.T) {
	// Find an available port.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	addr := ln.Addr().String()
	ln.Close() // free it for the server

	cfg := config.DefaultConfig()
	cfg.Server.ListenAddr = addr

	s := New(cfg, stubBackend{}).WithShutdownTimeout(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)

	go func() {
		errCh <- s.Start(ctx)
	}()

	client := &http.Client{Timeout: 2 * time.Second}

	var resp *http.Response

	for range 50 {
		resp, err = client.Get(fmt.Sprintf("http://%s/health", addr))
		if err == nil {
			break
		}

		time.Sleep(20 * time.Millisecond)
	}

	if err != nil {
		t.Fatalf("server never became ready: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/health status = %d; want 200", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode /health: %v", err)
	}

	if body["status"] != "ok" {
		t.Errorf("status = %q; want ok", body["status"])
	}

	if err := ProbeHTTP(addr); err != nil {
		t.Errorf("ProbeHTTP: %v", err)
	}

	// Graceful shutdown.
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Start() returned error on shutdown: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return within 5s of context cancel")
	}
}

func TestStart_MissingBundleFails(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Paths.ModelDir = t.TempDir()

	s := New(cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Start(ctx); err == nil {
		t.Error("Start() = nil; want error for a model dir without a bundle")
	}
}

func TestStart_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	cfg := config.DefaultConfig()
	cfg.Server.ListenAddr = ln.Addr().String()

	err = New(cfg, stubBackend{}).Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "http listen") {
		t.Fatalf("Start() = %v; want listen error", err)
	}
}
