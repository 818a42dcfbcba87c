package worker

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/qutlas/cadmium/pkg/cache"
)

func TestHostDo(t *testing.T) {
	host := NewHost(NewHandler(cache.New(0, 0)), time.Second)
	req, _ := NewRequest("a", OpCreateBox, BoxPayload{Length: 1, Width: 1, Height: 1})
	resp := host.Do(context.Background(), req)
	if resp.Type != TypeResult || resp.ID != "a" {
		t.Fatalf("Do() = %s %s (%s), want RESULT a", resp.Type, resp.ID, resp.Error)
	}
	if got := host.Generation(); got != 1 {
		t.Errorf("Generation() = %d, want 1", got)
	}
}

func TestHostTimeout(t *testing.T) {
	release := make(chan struct{})
	slow := HandlerFunc(func(ctx context.Context, req Request) Response {
		<-release
		return Response{ID: req.ID, Type: TypeResult}
	})
	host := NewHost(slow, 20*time.Millisecond)

	start := time.Now()
	resp := host.Do(context.Background(), Request{ID: "slow", Operation: OpCreateSphere})
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Do() took %v, want prompt timeout", elapsed)
	}
	if resp.Type != TypeError || resp.Code != "TIMEOUT" || resp.ID != "slow" {
		t.Errorf("Do() = %s %s %s, want ERROR TIMEOUT slow", resp.Type, resp.Code, resp.ID)
	}
	if !strings.Contains(resp.Error, "timed out after 20ms") {
		t.Errorf("Error = %q, want timeout message", resp.Error)
	}
	if host.Running() != 1 {
		t.Errorf("Running() = %d, want the abandoned request still running", host.Running())
	}

	close(release)
	host.Wait()
	if host.Running() != 0 {
		t.Errorf("Running() after Wait() = %d, want 0", host.Running())
	}
}

func TestHostCallerCancel(t *testing.T) {
	started := make(chan struct{})
	block := HandlerFunc(func(ctx context.Context, req Request) Response {
		close(started)
		<-ctx.Done()
		return ErrorResponse(req.ID, ctx.Err())
	})
	host := NewHost(block, -1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	resp := host.Do(ctx, Request{ID: "c", Operation: OpCreateBox})
	if resp.Type != TypeError || resp.Code != "INTERNAL_ERROR" {
		t.Errorf("Do() = %s %s, want ERROR INTERNAL_ERROR", resp.Type, resp.Code)
	}
	host.Wait()
}

func TestHostRecoversPanic(t *testing.T) {
	boom := HandlerFunc(func(ctx context.Context, req Request) Response {
		panic("boom")
	})
	host := NewHost(boom, time.Second)
	resp := host.Do(context.Background(), Request{ID: "p", Operation: OpCreateBox})
	if resp.Type != TypeError || resp.Code != "INTERNAL_ERROR" || !strings.Contains(resp.Error, "boom") {
		t.Errorf("Do() = %s %s %q, want INTERNAL_ERROR mentioning boom", resp.Type, resp.Code, resp.Error)
	}

	// The host keeps serving after a panic.
	ok := NewHost(NewHandler(cache.New(0, 0)), time.Second)
	req, _ := NewRequest("b", OpCreateBox, BoxPayload{Length: 1, Width: 1, Height: 1})
	if resp := ok.Do(context.Background(), req); resp.Type != TypeResult {
		t.Errorf("Do() after panic = %s, want RESULT", resp.Type)
	}
}

func TestHostConcurrentSubmit(t *testing.T) {
	h := NewHandler(cache.New(0, 0))
	host := NewHost(h, 5*time.Second)

	const n = 16
	chans := make([]<-chan Response, n)
	for i := range chans {
		req, _ := NewRequest(string(rune('a'+i)), OpCreateCylinder, CylinderPayload{Radius: 1, Height: float64(i + 1), Segments: 12})
		chans[i] = host.Submit(context.Background(), req)
	}

	var wg sync.WaitGroup
	ids := make([]string, n)
	for i, ch := range chans {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := <-ch
			if resp.Type != TypeResult {
				t.Errorf("request %d: %s %s", i, resp.Type, resp.Error)
				return
			}
			ids[i] = resp.Result.(MeshResult).GeometryID
		}()
	}
	wg.Wait()
	host.Wait()

	seen := map[string]bool{}
	for _, id := range ids {
		if id == "" || seen[id] {
			t.Errorf("geometry ids = %v, want %d distinct", ids, n)
			break
		}
		seen[id] = true
	}
	if h.Cache().Len() != n {
		t.Errorf("Len() = %d, want %d", h.Cache().Len(), n)
	}
	if host.Generation() != n {
		t.Errorf("Generation() = %d, want %d", host.Generation(), n)
	}
}

func TestHostReady(t *testing.T) {
	if resp := NewHost(NewHandler(cache.New(0, 0)), 0).Ready(); resp.Type != TypeReady || resp.Result == nil {
		t.Errorf("Ready() = %+v, want READY with capabilities", resp)
	}
	bare := NewHost(HandlerFunc(func(context.Context, Request) Response { return Response{} }), 0)
	if resp := bare.Ready(); resp.Type != TypeReady {
		t.Errorf("Ready() type = %s, want READY", resp.Type)
	}
}
