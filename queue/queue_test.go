package queue

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const (
	mail  = "function::sendMail"
	index = "function::rebuildIndex"
)

// ---------------------------------------------------------------------------
// Manager basics
// ---------------------------------------------------------------------------

func TestNewManager_Empty(t *testing.T) {
	m := NewManager()
	if !m.Acquire("function::anything", "") {
		t.Fatal("expected Acquire to succeed for unconfigured target")
	}
	m.Release("function::anything", "")
}

func TestManager_MaxConcurrency(t *testing.T) {
	m := NewManager(Config{Target: mail, MaxConcurrency: 2})

	if !m.Acquire(mail, "") {
		t.Fatal("first Acquire should succeed")
	}
	if !m.Acquire(mail, "") {
		t.Fatal("second Acquire should succeed")
	}
	if m.Acquire(mail, "") {
		t.Fatal("third Acquire should fail (max concurrency 2)")
	}

	m.Release(mail, "")
	if !m.Acquire(mail, "") {
		t.Fatal("Acquire should succeed after Release")
	}
	if got := m.ActiveCount(mail); got != 2 {
		t.Fatalf("ActiveCount = %d, want 2", got)
	}
}

func TestManager_TargetsAreIndependent(t *testing.T) {
	m := NewManager(
		Config{Target: mail, MaxConcurrency: 1},
		Config{Target: index, MaxConcurrency: 1},
	)

	if !m.Acquire(mail, "") || !m.Acquire(index, "") {
		t.Fatal("each target should admit one job")
	}
	if m.Acquire(mail, "") {
		t.Fatal("mail should be full")
	}
}

// ---------------------------------------------------------------------------
// Rate limits
// ---------------------------------------------------------------------------

func TestManager_RateLimit_Throttles(t *testing.T) {
	m := NewManager(Config{Target: mail, RateLimit: 1, RateBurst: 1})

	if !m.Acquire(mail, "") {
		t.Fatal("first Acquire should succeed (within burst)")
	}
	m.Release(mail, "")

	if m.Acquire(mail, "") {
		t.Fatal("second Acquire should fail (rate limited)")
	}

	time.Sleep(1100 * time.Millisecond)
	if !m.Acquire(mail, "") {
		t.Fatal("Acquire should succeed after token refill")
	}
	m.Release(mail, "")
}

func TestManager_RateLimit_BurstAllows(t *testing.T) {
	m := NewManager(Config{Target: mail, RateLimit: 10, RateBurst: 3})

	for i := range 3 {
		if !m.Acquire(mail, "") {
			t.Fatalf("Acquire %d should succeed (within burst)", i)
		}
		m.Release(mail, "")
	}
}

func TestManager_FullGateSpendsNoTokens(t *testing.T) {
	m := NewManager(Config{Target: mail, MaxConcurrency: 1, RateLimit: 0.001, RateBurst: 2})

	if !m.Acquire(mail, "") {
		t.Fatal("first Acquire should succeed")
	}
	// Refused on concurrency; the second token must survive.
	if m.Acquire(mail, "") {
		t.Fatal("second Acquire should fail on concurrency")
	}
	m.Release(mail, "")
	if !m.Acquire(mail, "") {
		t.Fatal("token was spent by a refused Acquire")
	}
}

// ---------------------------------------------------------------------------
// Per-client limits
// ---------------------------------------------------------------------------

func TestManager_ClientConcurrency(t *testing.T) {
	m := NewManager(Config{Target: mail, MaxConcurrency: 100})
	m.SetClientConfig(ClientConfig{Client: "reports", MaxConcurrency: 1})

	if !m.Acquire(mail, "reports") {
		t.Fatal("reports first Acquire should succeed")
	}
	if m.Acquire(index, "reports") {
		t.Fatal("reports limit should apply across targets")
	}
	if !m.Acquire(mail, "billing") {
		t.Fatal("billing has no client limit")
	}
	if got := m.ClientActiveCount("reports"); got != 1 {
		t.Fatalf("ClientActiveCount = %d, want 1", got)
	}

	m.Release(mail, "reports")
	m.Release(mail, "billing")
	if got := m.ClientActiveCount("reports"); got != 0 {
		t.Fatalf("ClientActiveCount after release = %d, want 0", got)
	}
}

func TestManager_ClientRateLimit(t *testing.T) {
	m := NewManager()
	m.SetClientConfig(ClientConfig{Client: "A", RateLimit: 1, RateBurst: 1})

	if !m.Acquire(mail, "A") {
		t.Fatal("first Acquire should succeed")
	}
	m.Release(mail, "A")
	if m.Acquire(index, "A") {
		t.Fatal("client rate limit should apply to any target")
	}
	if !m.Acquire(index, "B") {
		t.Fatal("client B is unaffected")
	}
}

// ---------------------------------------------------------------------------
// Dynamic reconfiguration
// ---------------------------------------------------------------------------

func TestManager_SetConfig(t *testing.T) {
	m := NewManager(Config{Target: index, MaxConcurrency: 1})

	m.Acquire(index, "")
	if m.Acquire(index, "") {
		t.Fatal("should be blocked at concurrency 1")
	}

	m.SetConfig(Config{Target: index, MaxConcurrency: 3})
	if got := m.ActiveCount(index); got != 1 {
		t.Fatalf("ActiveCount after SetConfig = %d, want 1", got)
	}
	if !m.Acquire(index, "") {
		t.Fatal("should succeed after raising concurrency")
	}
}

// ---------------------------------------------------------------------------
// Concurrency safety
// ---------------------------------------------------------------------------

func TestManager_ConcurrentAccess(t *testing.T) {
	m := NewManager(Config{Target: mail, MaxConcurrency: 50})
	m.SetClientConfig(ClientConfig{Client: "A", MaxConcurrency: 25})

	var acquired atomic.Int64
	var wg sync.WaitGroup

	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Acquire(mail, "A") {
				acquired.Add(1)
				time.Sleep(time.Millisecond)
				m.Release(mail, "A")
			}
		}()
	}
	wg.Wait()

	if acquired.Load() == 0 {
		t.Fatal("expected some Acquires to succeed")
	}
	if m.ActiveCount(mail) != 0 || m.ClientActiveCount("A") != 0 {
		t.Fatalf("active = %d/%d after all goroutines, want 0/0",
			m.ActiveCount(mail), m.ClientActiveCount("A"))
	}
}

func TestManager_ReleaseUnderflow(t *testing.T) {
	m := NewManager(Config{Target: mail, MaxConcurrency: 5})

	m.Release(mail, "")
	m.Release("function::unknown", "nobody")
	if m.ActiveCount(mail) != 0 {
		t.Fatal("active count should not go below 0")
	}
}
