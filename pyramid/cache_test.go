package pyramid

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDirectoryCacheDedup(t *testing.T) {
	cache := NewDirectoryCache[string]()
	var calls int32
	release := make(chan struct{})
	decode := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "directory", nil
	}

	const numCallers = 20
	var wg sync.WaitGroup
	results := make([]string, numCallers)
	errs := make([]error, numCallers)
	for i := 0; i < numCallers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.Get(context.Background(), "0-1-2-1", decode)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < numCallers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d got error: %v\n", i, errs[i])
		}
		if results[i] != "directory" {
			t.Errorf("caller %d got %q\n", i, results[i])
		}
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected 1 decode, got %d\n", n)
	}
	if cache.Len() != 1 {
		t.Errorf("expected 1 cache entry, got %d\n", cache.Len())
	}

	// cached value is returned without decoding
	v, err := cache.Get(context.Background(), "0-1-2-1", func(ctx context.Context) (string, error) {
		t.Fatalf("decode called for cached key\n")
		return "", nil
	})
	if err != nil || v != "directory" {
		t.Errorf("bad cached get: %q, %v\n", v, err)
	}
	if cache.MemSize() <= 0 {
		t.Errorf("expected positive memory size for cache\n")
	}
}

func TestDirectoryCacheCancelled(t *testing.T) {
	cache := NewDirectoryCache[int]()
	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("0-%d-0-1", i)
		if _, err := cache.Get(context.Background(), key, func(context.Context) (int, error) { return i, nil }); err != nil {
			t.Fatal(err)
		}
	}
	before := cache.Keys()

	// cancelled before the read
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cache.Get(ctx, "0-9-0-1", func(context.Context) (int, error) {
		t.Fatalf("decode should not run for cancelled request\n")
		return 0, nil
	})
	if !errors.Is(err, ErrOperationAborted) {
		t.Errorf("expected aborted error, got %v\n", err)
	}

	// cancelled while the decode is in flight
	ctx, cancel = context.WithCancel(context.Background())
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := cache.Get(ctx, "0-8-0-1", func(context.Context) (int, error) {
			<-release
			return 8, nil
		})
		if !errors.Is(err, ErrOperationAborted) {
			t.Errorf("expected aborted error for in-flight cancel, got %v\n", err)
		}
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done
	close(release)
	time.Sleep(20 * time.Millisecond)

	after := cache.Keys()
	if !reflect.DeepEqual(before, after) {
		t.Errorf("cache changed by cancelled requests: %v -> %v\n", before, after)
	}
}

func TestDirectoryCacheErrorsNotStored(t *testing.T) {
	cache := NewDirectoryCache[int]()
	failure := errors.New("bad directory")
	if _, err := cache.Get(context.Background(), "k", func(context.Context) (int, error) { return 0, failure }); !errors.Is(err, failure) {
		t.Fatalf("expected decode failure, got %v\n", err)
	}
	if cache.Len() != 0 {
		t.Errorf("failed decode was cached\n")
	}
	v, err := cache.Get(context.Background(), "k", func(context.Context) (int, error) { return 7, nil })
	if err != nil || v != 7 {
		t.Errorf("expected retry to succeed, got %d, %v\n", v, err)
	}
}

func TestDirectoryCacheSiblingSurvivesCancel(t *testing.T) {
	cache := NewDirectoryCache[int]()
	release := make(chan struct{})
	started := make(chan struct{})
	decode := func(context.Context) (int, error) {
		close(started)
		<-release
		return 42, nil
	}
	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderDone := make(chan error, 1)
	go func() {
		_, err := cache.Get(leaderCtx, "k", decode)
		leaderDone <- err
	}()
	<-started

	siblingDone := make(chan int, 1)
	go func() {
		v, err := cache.Get(context.Background(), "k", decode)
		if err != nil {
			t.Errorf("sibling failed: %v\n", err)
		}
		siblingDone <- v
	}()
	time.Sleep(20 * time.Millisecond)
	cancelLeader()
	if err := <-leaderDone; !errors.Is(err, ErrOperationAborted) {
		t.Errorf("expected leader aborted, got %v\n", err)
	}
	close(release)
	if v := <-siblingDone; v != 42 {
		t.Errorf("expected sibling to get 42, got %d\n", v)
	}
}
