package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/susubank/susubank/internal/httpx"
)

const (
	idempotencyKeyHeader   = "Idempotency-Key"
	idempotencyReplayed    = "Idempotent-Replayed"
	idempotencyPrefix      = "idempotency:v1:"
	idempotencyStoreWindow = 2 * time.Second
	maxIdempotencyKeyLen   = 255
)

// idempotencyRecord is what Redis holds under a key: a pending claim while
// the first request runs, then the response it produced.
type idempotencyRecord struct {
	Fingerprint string `json:"fingerprint"`
	Pending     bool   `json:"pending,omitempty"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotency makes unsafe requests replayable. The first request carrying a
// key claims it with SETNX and its response is stored for ttl; repeats get
// the stored response. A repeat that arrives while the first is running gets
// 409, and reusing a key for a different method, path or body gets 422.
// Keys are scoped to the authenticated user, so it runs after JWTAuth. Error
// responses and 5xx are not stored and the key is released for a retry.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		key := c.Get(idempotencyKeyHeader)
		if key == "" {
			return fiber.NewError(fiber.StatusBadRequest, "missing Idempotency-Key header")
		}
		if len(key) > maxIdempotencyKeyLen {
			return fiber.NewError(fiber.StatusBadRequest, "Idempotency-Key is too long")
		}

		owner, _ := c.Locals(httpx.LocalUserID).(string)
		if owner == "" {
			owner = "anonymous"
		}
		cacheKey := idempotencyPrefix + owner + ":" + key
		fingerprint := requestFingerprint(c)
		log := logger.With(slog.String("idempotency_key", key), slog.String("request_id", httpx.RequestID(c)))

		ctx, cancel := context.WithTimeout(context.Background(), idempotencyStoreWindow)
		defer cancel()

		claim, _ := json.Marshal(idempotencyRecord{Fingerprint: fingerprint, Pending: true})
		claimed, err := cache.SetNX(ctx, cacheKey, claim, ttl).Result()
		if err != nil {
			log.Error("idempotency claim failed", slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency store failure")
		}
		if !claimed {
			return replay(ctx, c, cache, cacheKey, fingerprint, log)
		}

		if err := c.Next(); err != nil {
			release(cache, cacheKey, log)
			return err
		}

		status := c.Response().StatusCode()
		if status >= fiber.StatusInternalServerError {
			release(cache, cacheKey, log)
			return nil
		}

		payload, _ := json.Marshal(idempotencyRecord{
			Fingerprint: fingerprint,
			Status:      status,
			ContentType: string(c.Response().Header.ContentType()),
			Body:        c.Response().Body(),
		})
		persistCtx, persistCancel := context.WithTimeout(context.Background(), idempotencyStoreWindow)
		defer persistCancel()
		if err := cache.Set(persistCtx, cacheKey, payload, ttl).Err(); err != nil {
			// The mutation already committed; the client keeps its response and
			// a retry with this key will run again once the claim expires.
			log.Error("failed to persist idempotent response", slog.Any("error", err))
			release(cache, cacheKey, log)
		}
		return nil
	}
}

func replay(ctx context.Context, c *fiber.Ctx, cache *redis.Client, cacheKey, fingerprint string, log *slog.Logger) error {
	raw, err := cache.Get(ctx, cacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		// Claim released between SETNX and GET; the first request failed.
		return fiber.NewError(fiber.StatusConflict, "duplicate request, retry")
	}
	if err != nil {
		log.Error("idempotency lookup failed", slog.Any("error", err))
		return fiber.NewError(fiber.StatusInternalServerError, "idempotency store failure")
	}

	var rec idempotencyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		log.Warn("failed to decode stored idempotent response", slog.Any("error", err))
		return fiber.NewError(fiber.StatusConflict, "duplicate request")
	}
	if rec.Fingerprint != fingerprint {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "Idempotency-Key was used for a different request")
	}
	if rec.Pending {
		return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
	}

	if rec.ContentType != "" {
		c.Set(fiber.HeaderContentType, rec.ContentType)
	}
	c.Set(idempotencyReplayed, "true")
	return c.Status(rec.Status).Send(rec.Body)
}

func release(cache *redis.Client, cacheKey string, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), idempotencyStoreWindow)
	defer cancel()
	if err := cache.Del(ctx, cacheKey).Err(); err != nil {
		log.Warn("failed to release idempotency key", slog.Any("error", err))
	}
}

func requestFingerprint(c *fiber.Ctx) string {
	h := sha256.New()
	h.Write([]byte(c.Method()))
	h.Write([]byte{0})
	h.Write([]byte(c.Path()))
	h.Write([]byte{0})
	h.Write(c.Body())
	return hex.EncodeToString(h.Sum(nil))
}
