// Package storage defines the durable key-value port the cart and order core persist through.
// Values are JSON documents stored under fixed string keys; writes are last-write-wins.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// Keys of the shared client namespace.
const (
	KeyCart         = "shopping-cart"
	KeyRecipient    = "user-info"
	KeyPayment      = "payment-info"
	KeyCurrentOrder = "currentOrder"
	KeyAppointments = "appointments"
)

// Port is the get/set/remove facility a durable store offers.
type Port interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	// Remove deletes the key; removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

// PutJSON serializes v and stores it under key.
func PutJSON(ctx context.Context, port Port, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := port.Set(ctx, key, data); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

// GetJSON loads key into v. It reports false when the key is absent. Decoding failures
// are returned as *DecodeError so callers can fall back to an empty default.
func GetJSON(ctx context.Context, port Port, key string, v any) (bool, error) {
	data, ok, err := port.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, &DecodeError{Key: key, Err: err}
	}
	return true, nil
}

// DecodeError reports a stored value that is not valid for its key.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
