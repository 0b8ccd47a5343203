package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// blockOne occupies the only worker until the returned func is called.
func blockOne(t *testing.T, d *Dispatcher, userID string) (release func(), done <-chan error) {
	t.Helper()
	started := make(chan struct{})
	unblock := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- d.Submit(context.Background(), userID, func(context.Context) error {
			close(started)
			<-unblock
			return nil
		})
	}()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatalf("blocking job never started")
	}
	return func() { close(unblock) }, errCh
}

func TestSubmitReturnsJobResult(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MinWorkers: 1, MaxWorkers: 2, QueueSize: 4})
	defer d.Close()

	want := errors.New("boom")
	if err := d.Submit(context.Background(), "u1", func(context.Context) error { return want }); !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
	ran := false
	if err := d.Submit(context.Background(), "u1", func(context.Context) error { ran = true; return nil }); err != nil || !ran {
		t.Fatalf("second job: ran=%v err=%v", ran, err)
	}
}

func TestDispatcherRoundRobinsUsers(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MaxWorkers: 1, QueueSize: 8})
	defer d.Close()

	release, blockerDone := blockOne(t, d, "a")

	var mu sync.Mutex
	var order []string
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}
	var wg sync.WaitGroup
	submit := func(userID, name string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.Submit(context.Background(), userID, record(name)); err != nil {
				t.Errorf("%s: %v", name, err)
			}
		}()
	}

	submit("a", "a2")
	waitFor(t, "a2 queued", func() bool { return d.Pending("a") == 1 })
	submit("a", "a3")
	waitFor(t, "a3 buffered", func() bool { return len(d.jobQueue) == 1 })
	submit("b", "b1")
	waitFor(t, "b1 buffered", func() bool { return len(d.jobQueue) == 2 })

	release()
	if err := <-blockerDone; err != nil {
		t.Fatalf("blocker: %v", err)
	}
	wg.Wait()

	want := []string{"a2", "b1", "a3"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestDispatcherBusyWhenQueueFull(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MaxWorkers: 1, QueueSize: 1})
	defer d.Close()

	release, _ := blockOne(t, d, "a")
	defer release()

	go d.Submit(context.Background(), "a", func(context.Context) error { return nil })
	waitFor(t, "job queued", func() bool { return d.Pending("a") == 1 })
	go d.Submit(context.Background(), "a", func(context.Context) error { return nil })
	waitFor(t, "channel full", func() bool { return len(d.jobQueue) == 1 })

	err := d.Submit(context.Background(), "b", func(context.Context) error { return nil })
	if !errors.Is(err, ErrDispatcherBusy) {
		t.Fatalf("err = %v, want busy", err)
	}
}

func TestCancelUserDropsQueuedJobs(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MaxWorkers: 1, QueueSize: 4})
	defer d.Close()

	release, _ := blockOne(t, d, "a")
	defer release()

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.Submit(context.Background(), "b", func(context.Context) error {
			t.Error("canceled job ran")
			return nil
		})
	}()
	waitFor(t, "job queued", func() bool { return d.Pending("b") == 1 })
	d.CancelUser("b")

	if err := <-errCh; !errors.Is(err, ErrJobCanceled) {
		t.Fatalf("err = %v, want canceled", err)
	}
	if d.Pending("b") != 0 {
		t.Fatalf("pending not cleared")
	}
}

func TestSubmitHonoursContext(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MaxWorkers: 1, QueueSize: 4})
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := d.Submit(ctx, "a", func(context.Context) error {
		t.Error("job with canceled context ran")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context canceled", err)
	}
}

func TestJobPanicBecomesError(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MaxWorkers: 1, QueueSize: 4})
	defer d.Close()

	err := d.Submit(context.Background(), "a", func(context.Context) error { panic("kaboom") })
	if err == nil {
		t.Fatalf("expected panic to surface as an error")
	}
	if err := d.Submit(context.Background(), "a", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("dispatcher unusable after panic: %v", err)
	}
}

func TestCloseFailsPendingAndNewJobs(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MaxWorkers: 1, QueueSize: 4})

	release, _ := blockOne(t, d, "a")
	defer release()

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.Submit(context.Background(), "b", func(context.Context) error { return nil })
	}()
	waitFor(t, "job queued", func() bool { return d.Pending("b") == 1 })
	d.Close()

	if err := <-errCh; !errors.Is(err, ErrDispatcherClosed) {
		t.Fatalf("pending err = %v", err)
	}
	if err := d.Submit(context.Background(), "c", func(context.Context) error { return nil }); !errors.Is(err, ErrDispatcherClosed) {
		t.Fatalf("submit after close err = %v", err)
	}
}

func TestIdleWorkersExpire(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MaxWorkers: 2, QueueSize: 4, WorkerIdleTimeout: 20 * time.Millisecond})
	defer d.Close()

	if err := d.Submit(context.Background(), "a", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if d.Workers() != 1 {
		t.Fatalf("workers = %d, want 1", d.Workers())
	}
	waitFor(t, "idle worker retired", func() bool { return d.Workers() == 0 })
}
