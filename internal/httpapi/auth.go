package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/sparkalerts/nwws-ingest/internal/config"
)

// maxClockSkew bounds how stale a signed request may be.
const maxClockSkew = 5 * time.Minute

// Gate validates requests on protected routes: origin allow-list,
// signed bearer key, timestamp freshness and per-key rate limiting.
type Gate struct {
	cfg *config.Config

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewGate returns a Gate backed by the service config.
func NewGate(cfg *config.Config) *Gate {
	return &Gate{cfg: cfg, limiters: make(map[string]*rate.Limiter)}
}

// Middleware runs the ordered auth checks. A matching origin or the
// allowNoOrigin escape hatch short-circuits the signature checks.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.originAllowed(r) {
			next.ServeHTTP(w, r)
			return
		}
		if g.cfg.AllowNoOrigin {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}
		key := strings.TrimPrefix(auth, "Bearer ")

		apiKey, ok := g.cfg.APIKeys[key]
		if !ok || !apiKey.Active {
			writeError(w, http.StatusUnauthorized, "Invalid or inactive API key")
			return
		}

		timestamp := r.Header.Get("X-Request-Time")
		if !timestampFresh(timestamp, time.Now()) {
			writeError(w, http.StatusUnauthorized, "Stale or missing request timestamp")
			return
		}

		if !signatureValid(key, timestamp, r.Method, r.URL.Path, r.Header.Get("X-Signature")) {
			writeError(w, http.StatusUnauthorized, "Invalid request signature")
			return
		}

		if !g.allow(key, apiKey, clientIP(r)) {
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded, try again later")
			return
		}

		apiKey.LastUsed = time.Now().UTC().Format(time.RFC3339)
		next.ServeHTTP(w, r)
	})
}

// originAllowed passes requests whose Origin or Referer contains a
// whitelisted domain.
func (g *Gate) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = r.Header.Get("Referer")
	}
	if origin == "" {
		return false
	}
	for _, domain := range g.cfg.DomainWhitelist {
		if domain != "" && strings.Contains(origin, domain) {
			return true
		}
	}
	return false
}

// timestampFresh accepts an epoch-milliseconds header within the skew
// window of now.
func timestampFresh(header string, now time.Time) bool {
	ms, err := strconv.ParseInt(header, 10, 64)
	if err != nil {
		return false
	}
	delta := now.Sub(time.UnixMilli(ms))
	if delta < 0 {
		delta = -delta
	}
	return delta <= maxClockSkew
}

// signatureValid checks X-Signature against
// hex(HMAC-SHA256(key, timestamp || method || path)).
func signatureValid(key, timestamp, method, path, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(timestamp + method + path))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// allow applies the windowed rate limit keyed by "<apiKey>_<clientIp>".
func (g *Gate) allow(key string, apiKey *config.APIKey, ip string) bool {
	max := apiKey.RateLimit
	if max <= 0 {
		max = g.cfg.RateLimit.DefaultMax
	}

	g.mu.Lock()
	bucket := key + "_" + ip
	lim, ok := g.limiters[bucket]
	if !ok {
		window := g.cfg.RateLimitWindow()
		lim = rate.NewLimiter(rate.Limit(float64(max)/window.Seconds()), max)
		g.limiters[bucket] = lim
	}
	g.mu.Unlock()

	if !lim.Allow() {
		log.Warn().Str("key_name", apiKey.Name).Str("ip", ip).Msg("Rate limit exceeded")
		return false
	}
	return true
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
