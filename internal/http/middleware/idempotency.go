package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	applog "tirepos/internal/log"
)

const HeaderIdempotencyKey = "Idempotency-Key"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`)

// Idem guards write endpoints with an Idempotency-Key header backed by Redis.
// The first request claims the key for TTL; repeats while the claim lives get
// 409 IDEMPOTENT_REPLAY. A request that ends in an error releases the claim
// so the client may retry. Without the header or a client it is a no-op.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "idem:" + hex.EncodeToString(sum[:])
}

func (i Idem) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(HeaderIdempotencyKey)
		if header == "" || i.R == nil {
			return c.Next()
		}
		ttl := i.TTL
		if ttl <= 0 {
			ttl = 10 * time.Minute
		}
		ctx := c.UserContext()
		key := hashKey(header)
		token := uuid.NewString()

		ok, err := i.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			applog.Error(c, "idempotency.store.fail", err, nil)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": fiber.Map{"code": "IDEMPOTENCY_UNAVAILABLE", "message": "idempotency store error"},
			})
		}
		if !ok {
			applog.Security(c, "idempotency.replay", map[string]any{"key": header})
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": fiber.Map{"code": "IDEMPOTENT_REPLAY", "message": "duplicate request"},
			})
		}

		err = c.Next()
		if err != nil || c.Response().StatusCode() >= fiber.StatusBadRequest {
			if rerr := releaseScript.Run(ctx, i.R, []string{key}, token).Err(); rerr != nil {
				applog.Error(c, "idempotency.release.fail", rerr, nil)
			}
		}
		return err
	}
}
