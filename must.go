package lite3

import (
	"context"
	"fmt"
)

// Key binds a key to a KV for map-like access. The Must methods panic on
// failure and are meant for scripts and tests; everything else should use
// the error-returning methods.
type Key struct {
	kv  KV
	key string
}

// At returns a handle for key on kv
func At(kv KV, key string) Key {
	return Key{kv: kv, key: key}
}

func (k Key) Name() string { return k.key }

func (k Key) Set(ctx context.Context, value []byte) error {
	return k.kv.Put(ctx, k.key, value)
}

func (k Key) Value(ctx context.Context) ([]byte, error) {
	return k.kv.Get(ctx, k.key)
}

func (k Key) Delete(ctx context.Context) error {
	return k.kv.Delete(ctx, k.key)
}

// MustSet is Set, panicking on error
func (k Key) MustSet(ctx context.Context, value []byte) {
	if err := k.Set(ctx, value); err != nil {
		panic(fmt.Sprintf("lite3: put %s: %v", k.key, err))
	}
}

// MustValue is Value, panicking on error
func (k Key) MustValue(ctx context.Context) []byte {
	value, err := k.Value(ctx)
	if err != nil {
		panic(fmt.Sprintf("lite3: get %s: %v", k.key, err))
	}
	return value
}

// MustSetJSON stores v as JSON, panicking on error
func (k Key) MustSetJSON(ctx context.Context, v any) {
	if err := PutJSON(ctx, k.kv, k.key, v); err != nil {
		panic(fmt.Sprintf("lite3: put %s: %v", k.key, err))
	}
}

// MustGetJSON decodes the JSON value of k, panicking on error
func MustGetJSON[T any](ctx context.Context, k Key) T {
	v, err := GetJSON[T](ctx, k.kv, k.key)
	if err != nil {
		panic(fmt.Sprintf("lite3: get %s: %v", k.key, err))
	}
	return v
}
