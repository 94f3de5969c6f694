package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/raaihank/log-redactor/internal/config"
)

func newLimiter(enabled bool, perMin, burst int) (*Limiter, *time.Time) {
	l := New(config.RateLimitConfig{Enabled: enabled, RequestsPerMin: perMin, Burst: burst})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAllowBurst(t *testing.T) {
	l, _ := newLimiter(true, 60, 3)

	for i := 0; i < 3; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("request %d rejected within burst", i+1)
		}
	}
	if l.Allow("10.0.0.1") {
		t.Error("request beyond burst allowed")
	}
	if !l.Allow("10.0.0.2") {
		t.Error("second client throttled by first client's bucket")
	}
}

func TestAllowRefill(t *testing.T) {
	l, now := newLimiter(true, 60, 1)

	if !l.Allow("a") {
		t.Fatal("first request rejected")
	}
	if l.Allow("a") {
		t.Fatal("second request allowed without refill")
	}

	*now = now.Add(time.Second)
	if !l.Allow("a") {
		t.Error("request rejected after one token refilled")
	}
}

func TestDisabled(t *testing.T) {
	l, _ := newLimiter(false, 1, 1)
	for i := 0; i < 100; i++ {
		if !l.Allow("a") {
			t.Fatal("disabled limiter rejected a request")
		}
	}
	if l.Clients() != 0 {
		t.Errorf("disabled limiter tracked %d clients", l.Clients())
	}
}

func TestCleanup(t *testing.T) {
	l, now := newLimiter(true, 60, 5)

	l.Allow("old")
	*now = now.Add(20 * time.Minute)
	l.Allow("new")

	if removed := l.Cleanup(10 * time.Minute); removed != 1 {
		t.Errorf("Cleanup() removed %d, want 1", removed)
	}
	if l.Clients() != 1 {
		t.Errorf("Clients() = %d, want 1", l.Clients())
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"remote addr", "192.168.1.100:12345", nil, "192.168.1.100"},
		{"forwarded for ignored", "10.0.0.5:1", map[string]string{"X-Forwarded-For": "203.0.113.45"}, "10.0.0.5"},
		{"real ip ignored", "10.0.0.5:1", map[string]string{"X-Real-IP": "198.51.100.23"}, "10.0.0.5"},
		{"no port", "unix", nil, "unix"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIPResolver(t *testing.T) {
	resolver, err := NewIPResolver([]string{"10.0.0.0/8", "192.168.1.1", " "})
	if err != nil {
		t.Fatalf("NewIPResolver() error = %v", err)
	}

	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"untrusted peer spoofing", "203.0.113.9:4000", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "203.0.113.9"},
		{"untrusted peer real ip", "203.0.113.9:4000", map[string]string{"X-Real-IP": "1.2.3.4"}, "203.0.113.9"},
		{"trusted proxy", "10.0.0.5:1", map[string]string{"X-Forwarded-For": "203.0.113.45"}, "203.0.113.45"},
		{"rightmost untrusted hop", "10.0.0.5:1", map[string]string{"X-Forwarded-For": "6.6.6.6, 203.0.113.45, 10.1.1.1"}, "203.0.113.45"},
		{"single address proxy", "192.168.1.1:80", map[string]string{"X-Forwarded-For": "198.51.100.7"}, "198.51.100.7"},
		{"other address not trusted", "192.168.1.2:80", map[string]string{"X-Forwarded-For": "198.51.100.7"}, "192.168.1.2"},
		{"malformed hop", "10.0.0.5:1", map[string]string{"X-Forwarded-For": "1.2.3.4, junk"}, "10.0.0.5"},
		{"all hops trusted", "10.0.0.5:1", map[string]string{"X-Forwarded-For": "10.9.9.9"}, "10.0.0.5"},
		{"trusted real ip", "10.0.0.5:1", map[string]string{"X-Real-IP": "198.51.100.23"}, "198.51.100.23"},
		{"mapped ipv4 peer", "[::ffff:10.0.0.5]:1", map[string]string{"X-Forwarded-For": "203.0.113.45"}, "203.0.113.45"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := resolver.ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("nil resolver", func(t *testing.T) {
		var none *IPResolver
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = "10.0.0.5:1"
		r.Header.Set("X-Forwarded-For", "1.2.3.4")
		if got := none.ClientIP(r); got != "10.0.0.5" {
			t.Errorf("ClientIP() = %q", got)
		}
	})

	t.Run("invalid entries", func(t *testing.T) {
		for _, bad := range []string{"10.0.0.0/33", "not-an-ip", "10.0.0"} {
			if _, err := NewIPResolver([]string{bad}); err == nil {
				t.Errorf("NewIPResolver(%q) accepted", bad)
			}
		}
	})
}
