package lite3

import "context"

// KV is the key-value surface shared by Conn and Router
type KV interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	PatchInt(ctx context.Context, key, field string, val int64) error
	PatchStr(ctx context.Context, key, field, val string) error
}
