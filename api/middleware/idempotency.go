package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/dealroom-backend/api/responses"
	pkgerrors "github.com/angelmondragon/dealroom-backend/pkg/errors"
	"github.com/angelmondragon/dealroom-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/dealroom-backend/pkg/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	// replayedHeader marks responses served from a stored record.
	replayedHeader = "Idempotent-Replayed"

	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	// inFlightTTL bounds how long a crashed request can block its key.
	inFlightTTL = time.Minute

	inFlightMarker = "in-flight"
)

// idempotentRoutes lists the commands that require an Idempotency-Key.
// Offer resolution, signatures and settlements move money or bind parties,
// so their records are kept for a week.
var idempotentRoutes = map[string]time.Duration{
	"/api/v1/rooms":                                     defaultIdempotencyTTL,
	"/api/v1/rooms/{roomId}/participants":               defaultIdempotencyTTL,
	"/api/v1/rooms/{roomId}/transitions":                defaultIdempotencyTTL,
	"/api/v1/rooms/{roomId}/offers":                     defaultIdempotencyTTL,
	"/api/v1/rooms/{roomId}/documents":                  defaultIdempotencyTTL,
	"/api/v1/rooms/{roomId}/contracts":                  defaultIdempotencyTTL,
	"/api/v1/documents/{documentId}/signature-requests": defaultIdempotencyTTL,
	"/api/v1/notifications/{notificationId}/read":       defaultIdempotencyTTL,
	"/api/v1/notifications/read-all":                    defaultIdempotencyTTL,
	"/api/v1/offers/{offerId}/resolve":                  criticalIdempotencyTTL,
	"/api/v1/documents/{documentId}/signatures":         criticalIdempotencyTTL,
	"/api/v1/rooms/{roomId}/settlements":                criticalIdempotencyTTL,
	"/api/v1/settlements/{settlementId}/status":         criticalIdempotencyTTL,
}

type idempotencyRecord struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	RequestHash string `json:"request_hash"`
}

// Idempotency makes POST commands safe to retry. The key is reserved before
// the handler runs so concurrent duplicates are rejected instead of executed
// twice. Server failures release the key; any other outcome is stored and
// replayed for the record's TTL.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := idempotencyTTL(r.Method, r.URL.Path)
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			hash := requestHash(body)
			key := store.IdempotencyKey(UserIDFromContext(ctx)+"|"+r.Method+"|"+r.URL.Path, clientKey)

			reserved, err := store.SetNX(ctx, key, inFlightMarker, inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				replay(w, r, store, key, hash, logg)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			if capture.Status() >= http.StatusInternalServerError {
				if err := store.Del(ctx, key); err != nil && logg != nil {
					logg.Error(ctx, "idempotency.release_failed", err)
				}
				return
			}

			payload, err := json.Marshal(idempotencyRecord{
				Status:      capture.Status(),
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
				RequestHash: hash,
			})
			if err == nil {
				err = store.Set(ctx, key, string(payload), ttl)
			}
			if err != nil && logg != nil {
				logg.Error(ctx, "idempotency.persist_failed", err)
			}
		})
	}
}

func replay(w http.ResponseWriter, r *http.Request, store pkgredis.IdempotencyStore, key, hash string, logg *logger.Logger) {
	ctx := r.Context()
	stored, err := store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil):
		// Released between SetNX and Get: the first attempt failed server side.
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is being retried"))
		return
	case err != nil:
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	case stored == inFlightMarker:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is in progress"))
		return
	}

	var record idempotencyRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	if record.RequestHash != hash {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
		return
	}

	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(record.Status)
	_, _ = w.Write(record.Body)
}

func requestHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// idempotencyTTL matches path against the route templates. The raw path is
// used because this middleware is mounted on the /api/v1 subrouter, where
// chi has not resolved the final pattern yet.
func idempotencyTTL(method, path string) (time.Duration, bool) {
	if method != http.MethodPost {
		return 0, false
	}
	path = strings.TrimSuffix(path, "/")
	for template, ttl := range idempotentRoutes {
		if matchTemplate(template, path) {
			return ttl, true
		}
	}
	return 0, false
}

// matchTemplate compares slash separated segments, treating {name} as a
// wildcard for exactly one non-empty segment.
func matchTemplate(template, path string) bool {
	want := strings.Split(template, "/")
	got := strings.Split(path, "/")
	if len(want) != len(got) {
		return false
	}
	for i, seg := range want {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if got[i] == "" {
				return false
			}
			continue
		}
		if seg != got[i] {
			return false
		}
	}
	return true
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) Status() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
