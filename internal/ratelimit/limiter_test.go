package ratelimit

import (
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/codr1/courtbook/internal/clock"
)

func newTestLimiter(rps float64, burst int) (*Limiter, *clock.Mock) {
	clk := clock.NewMock(time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC))
	return New(&Config{RequestsPerSecond: rps, Burst: burst, IdleTTL: time.Minute, Clock: clk}), clk
}

func TestAllow_BurstThenDeny(t *testing.T) {
	l, _ := newTestLimiter(1, 3)
	defer l.Close()

	for i := 0; i < 3; i++ {
		if result := l.Allow("203.0.113.10"); !result.Allowed {
			t.Fatalf("Request %d should be allowed", i+1)
		}
	}

	result := l.Allow("203.0.113.10")
	if result.Allowed {
		t.Fatal("Request past the burst should be denied")
	}
	if result.RetryAfter != time.Second {
		t.Errorf("Expected RetryAfter 1s, got %v", result.RetryAfter)
	}
}

func TestAllow_RefillsOverTime(t *testing.T) {
	l, clk := newTestLimiter(2, 1)
	defer l.Close()

	if !l.Allow("client").Allowed {
		t.Fatal("First request should be allowed")
	}
	result := l.Allow("client")
	if result.Allowed {
		t.Fatal("Second request should be denied")
	}
	if result.RetryAfter != 500*time.Millisecond {
		t.Errorf("Expected RetryAfter 500ms, got %v", result.RetryAfter)
	}

	clk.Advance(500 * time.Millisecond)
	if !l.Allow("client").Allowed {
		t.Error("Request should be allowed after the bucket refills")
	}
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, 1)
	defer l.Close()

	if !l.Allow("user:1").Allowed {
		t.Fatal("user:1 should be allowed")
	}
	if l.Allow("user:1").Allowed {
		t.Fatal("user:1 should be throttled")
	}
	if !l.Allow("user:2").Allowed {
		t.Error("user:2 should not share user:1's bucket")
	}
	if l.Len() != 2 {
		t.Errorf("Expected 2 buckets, got %d", l.Len())
	}
}

func TestCleanup_DropsIdleBuckets(t *testing.T) {
	l, clk := newTestLimiter(1, 1)
	defer l.Close()

	l.Allow("stale")
	clk.Advance(30 * time.Second)
	l.Allow("fresh")

	clk.Advance(45 * time.Second)
	l.cleanup()

	if l.Len() != 1 {
		t.Fatalf("Expected 1 bucket after cleanup, got %d", l.Len())
	}
	// The stale bucket starts over full.
	if !l.Allow("stale").Allowed {
		t.Error("Dropped bucket should be recreated with a full burst")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.RequestsPerSecond != 10 {
		t.Errorf("Expected RequestsPerSecond 10, got %v", cfg.RequestsPerSecond)
	}
	if cfg.Burst != 20 {
		t.Errorf("Expected Burst 20, got %d", cfg.Burst)
	}
	if cfg.IdleTTL != 10*time.Minute {
		t.Errorf("Expected IdleTTL 10m, got %v", cfg.IdleTTL)
	}
	if cfg.TrustProxy {
		t.Error("TrustProxy should default to false")
	}
}

func TestNew_NilConfig(t *testing.T) {
	l := New(nil)
	defer l.Close()

	if l.config.Burst != 20 {
		t.Errorf("Expected default burst, got %d", l.config.Burst)
	}
	if !l.Allow("client").Allowed {
		t.Error("First request should be allowed")
	}
}

func TestNew_FillsZeroFields(t *testing.T) {
	l := New(&Config{TrustProxy: true})
	defer l.Close()

	if l.config.RequestsPerSecond != 10 || l.config.Burst != 20 || l.config.IdleTTL != 10*time.Minute {
		t.Errorf("Zero fields should take defaults, got %+v", l.config)
	}
	if !l.TrustProxy() {
		t.Error("TrustProxy should be kept")
	}
}

func TestLimiter_Close(t *testing.T) {
	l := New(nil)
	l.Allow("client")

	done := make(chan struct{})
	go func() {
		l.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not stop the cleanup goroutine")
	}
}

func TestConcurrentAccess(t *testing.T) {
	l, _ := newTestLimiter(1, 50)
	defer l.Close()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if l.Allow(fmt.Sprintf("shared-%d", i%2)).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	// Two keys, 50 each, frozen clock: every request fits.
	if allowed != 100 {
		t.Errorf("Expected 100 allowed, got %d", allowed)
	}
}

func TestGetClientIP_TrustProxy(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		trustProxy bool
		expected   string
	}{
		{
			name:       "TrustProxy=true, XFF rightmost public IP",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.50, 10.0.0.1"},
			remoteAddr: "10.0.0.1:12345",
			trustProxy: true,
			expected:   "203.0.113.50", // Rightmost non-private
		},
		{
			name:       "TrustProxy=true, XFF all private",
			headers:    map[string]string{"X-Forwarded-For": "192.168.1.1, 10.0.0.1"},
			remoteAddr: "10.0.0.1:12345",
			trustProxy: true,
			expected:   "10.0.0.1", // Last one when all private
		},
		{
			name:       "TrustProxy=true, X-Real-IP",
			headers:    map[string]string{"X-Real-IP": "203.0.113.51"},
			remoteAddr: "10.0.0.1:12345",
			trustProxy: true,
			expected:   "203.0.113.51",
		},
		{
			name:       "TrustProxy=false, ignores XFF",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.50"},
			remoteAddr: "192.168.1.100:54321",
			trustProxy: false,
			expected:   "192.168.1.100", // Uses RemoteAddr, ignores spoofed XFF
		},
		{
			name:       "TrustProxy=false, ignores X-Real-IP",
			headers:    map[string]string{"X-Real-IP": "203.0.113.51"},
			remoteAddr: "192.168.1.100:54321",
			trustProxy: false,
			expected:   "192.168.1.100",
		},
		{
			name:       "No headers, RemoteAddr only",
			headers:    map[string]string{},
			remoteAddr: "192.168.1.100:54321",
			trustProxy: true,
			expected:   "192.168.1.100",
		},
		{
			name:       "RemoteAddr without port",
			headers:    map[string]string{},
			remoteAddr: "192.168.1.100",
			trustProxy: false,
			expected:   "192.168.1.100",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := http.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}

			got := GetClientIP(r, tt.trustProxy)
			if got != tt.expected {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestGetClientIP_SpoofingPrevention(t *testing.T) {
	// Attacker sends fake X-Forwarded-For header
	r, _ := http.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "1.2.3.4") // Attacker-supplied
	r.RemoteAddr = "192.168.1.100:54321"       // Real connection

	// With TrustProxy=false, the fake header is ignored
	got := GetClientIP(r, false)
	if got != "192.168.1.100" {
		t.Errorf("Should ignore X-Forwarded-For when TrustProxy=false, got %q", got)
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip       string
		expected bool
	}{
		// IPv4 private ranges
		{"10.0.0.1", true},
		{"10.255.255.255", true},
		{"172.16.0.1", true},
		{"172.31.255.255", true},
		{"192.168.1.1", true},
		{"192.168.255.255", true},
		{"127.0.0.1", true},
		// IPv6 private/reserved
		{"::1", true},
		{"fc00::1", true},
		{"fe80::1", true}, // Link-local
		// IPv4-mapped IPv6 addresses (must match their IPv4 equivalents)
		{"::ffff:10.0.0.1", true},
		{"::ffff:192.168.1.1", true},
		{"::ffff:172.16.0.1", true},
		{"::ffff:127.0.0.1", true},
		{"::ffff:8.8.8.8", false},   // Public IP in IPv4-mapped format
		{"::ffff:1.1.1.1", false},   // Public IP in IPv4-mapped format
		// Public IPs
		{"203.0.113.50", false},
		{"8.8.8.8", false},
		{"1.1.1.1", false},
		{"2001:4860:4860::8888", false}, // Google DNS IPv6
		// Invalid
		{"invalid", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			got := isPrivateIP(tt.ip)
			if got != tt.expected {
				t.Errorf("isPrivateIP(%q) = %v, want %v", tt.ip, got, tt.expected)
			}
		})
	}
}
