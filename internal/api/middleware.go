package api

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gfranzoni/accountledger/internal/auth"
	"github.com/gfranzoni/accountledger/internal/idempotency"
)

// AuthMiddleware rejects requests without a valid bearer token and stores
// the caller identity on the context.
func AuthMiddleware(a *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, `{"error":"missing bearer token"}`, http.StatusUnauthorized)
				return
			}
			caller, err := a.Verify(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithCaller(r.Context(), caller)))
		})
	}
}

// responseRecorder captures status and body so the idempotency gate can
// replay them later.
type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (rec *responseRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *responseRecorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	rec.body.Write(b)
	return rec.ResponseWriter.Write(b)
}

// IdempotencyGate short-circuits repeated mutating calls that present the
// same Idempotency-Key header. The cache key is derived from the request
// content and caller, so a reused header with a different payload is treated
// as a new request rather than replayed. Requests without the header pass
// straight through.
func IdempotencyGate(cache *idempotency.Cache) func(http.Handler) http.Handler {
	mutating := map[string]bool{
		http.MethodPost:   true,
		http.MethodPut:    true,
		http.MethodPatch:  true,
		http.MethodDelete: true,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !mutating[r.Method] || r.Header.Get("Idempotency-Key") == "" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, `{"error":"stream read error"}`, http.StatusInternalServerError)
				return
			}
			r.Body = io.NopCloser(bytes.NewBuffer(body))

			caller, _ := auth.CallerFromContext(r.Context())
			key := idempotency.GenerateKey(r.Method, r.URL.Path, body, caller)

			if cached, ok := cache.Check(key); ok {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotent-Replay", "true")
				w.WriteHeader(cached.Status)
				w.Write(cached.Body)
				return
			}

			rec := &responseRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			// Server failures are retryable and conflicts are transient
			// (a duplicate racing an in-flight first attempt); caching
			// either would poison the retry path. Only settled outcomes
			// replay.
			if rec.status > 0 && rec.status < http.StatusInternalServerError &&
				rec.status != http.StatusConflict {
				cache.Store(key, idempotency.CachedResponse{
					Status: rec.status,
					Body:   append([]byte(nil), rec.body.Bytes()...),
				})
			}
		})
	}
}

// rateBucket is a per-caller token bucket refilled on a fixed interval.
type rateBucket struct {
	tokens chan struct{}
}

// RateLimiter enforces a requests-per-second ceiling per caller identity,
// falling back to the remote address for unauthenticated paths.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rateBucket
	rps     int
}

func NewRateLimiter(rps int) *RateLimiter {
	return &RateLimiter{buckets: make(map[string]*rateBucket), rps: rps}
}

func (l *RateLimiter) bucketFor(id string) *rateBucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[id]
	if !ok {
		b = &rateBucket{tokens: make(chan struct{}, l.rps)}
		for i := 0; i < l.rps; i++ {
			b.tokens <- struct{}{}
		}
		l.buckets[id] = b
		go refill(b.tokens, l.rps)
	}
	return b
}

func refill(tokens chan struct{}, rps int) {
	ticker := time.NewTicker(time.Second / time.Duration(rps))
	defer ticker.Stop()
	for range ticker.C {
		select {
		case tokens <- struct{}{}:
		default:
		}
	}
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.CallerFromContext(r.Context())
		if !ok {
			id = r.RemoteAddr
		}
		select {
		case <-l.bucketFor(id).tokens:
			next.ServeHTTP(w, r)
		default:
			http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
		}
	})
}
