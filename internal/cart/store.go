// Package cart keeps customers' carts in Redis until checkout.
package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/trip-checkout/internal/domain/booking"
)

// Cart is the stored cart of one customer.
type Cart struct {
	CustomerID string             `json:"customer_id"`
	Items      []booking.CartItem `json:"items"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// Store persists carts with a sliding TTL.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewClient connects to Redis at url and verifies the connection.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}

// NewStore returns a Store whose carts expire after ttl without writes.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func cartKey(customerID string) string {
	return fmt.Sprintf("cart:customer:%s", customerID)
}

func idemKey(key string) string {
	return "idem:checkout:" + key
}

// Get returns the customer's cart. A missing cart is returned empty.
func (s *Store) Get(ctx context.Context, customerID string) (*Cart, error) {
	data, err := s.client.Get(ctx, cartKey(customerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return &Cart{CustomerID: customerID}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get cart %s", customerID)
	}

	var c Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrapf(err, "decode cart %s", customerID)
	}
	return &c, nil
}

// Save replaces the customer's cart and refreshes its TTL.
func (s *Store) Save(ctx context.Context, c *Cart) error {
	c.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "encode cart")
	}
	if err := s.client.Set(ctx, cartKey(c.CustomerID), data, s.ttl).Err(); err != nil {
		return errors.Wrapf(err, "save cart %s", c.CustomerID)
	}
	return nil
}

// Delete removes the customer's cart.
func (s *Store) Delete(ctx context.Context, customerID string) error {
	if err := s.client.Del(ctx, cartKey(customerID)).Err(); err != nil {
		return errors.Wrapf(err, "delete cart %s", customerID)
	}
	return nil
}

// ErrCheckoutInFlight is returned by Recall while the checkout that reserved
// the key has not finished.
var ErrCheckoutInFlight = errors.New("checkout already in progress")

// pending marks a reserved idempotency key. Stored responses are JSON
// objects, so it never collides with one.
const pending = "pending"

// Reserve claims an idempotency key for a checkout about to run. It reports
// false when the key is already taken, either by a running checkout or by a
// stored response.
func (s *Store) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, idemKey(key), pending, ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "reserve idempotency key")
	}
	return ok, nil
}

// Recall returns the response stored for an idempotency key.
func (s *Store) Recall(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, idemKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "recall idempotency key")
	}
	if string(data) == pending {
		return nil, false, ErrCheckoutInFlight
	}
	return data, true, nil
}

// Remember stores the response of the checkout that reserved key.
func (s *Store) Remember(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, idemKey(key), data, ttl).Err(); err != nil {
		return errors.Wrap(err, "remember idempotency key")
	}
	return nil
}

// Release frees a reserved key so the checkout can be retried.
func (s *Store) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, idemKey(key)).Err(); err != nil {
		return errors.Wrap(err, "release idempotency key")
	}
	return nil
}

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
