package lite3

import (
	"context"
	"encoding/json"

	"google.golang.org/protobuf/proto"
)

// PutJSON stores v encoded as JSON
func PutJSON(ctx context.Context, kv KV, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &Error{Kind: KindSerialization, Message: "encode json", Err: err}
	}
	return kv.Put(ctx, key, data)
}

// GetJSON reads key and decodes it as JSON into a T
func GetJSON[T any](ctx context.Context, kv KV, key string) (T, error) {
	var out T
	data, err := kv.Get(ctx, key)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, &Error{Kind: KindSerialization, Message: "decode json", Err: err}
	}
	return out, nil
}

// PutProto stores m in protobuf wire format
func PutProto(ctx context.Context, kv KV, key string, m proto.Message) error {
	data, err := proto.Marshal(m)
	if err != nil {
		return &Error{Kind: KindSerialization, Message: "encode proto", Err: err}
	}
	return kv.Put(ctx, key, data)
}

// GetProto reads key and decodes it into m
func GetProto(ctx context.Context, kv KV, key string, m proto.Message) error {
	data, err := kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := proto.Unmarshal(data, m); err != nil {
		return &Error{Kind: KindSerialization, Message: "decode proto", Err: err}
	}
	return nil
}

// Contains reports whether key exists. Errors other than not-found are
// returned.
func Contains(ctx context.Context, kv KV, key string) (bool, error) {
	_, err := kv.Get(ctx, key)
	if err == nil {
		return true, nil
	}
	if KindOf(err) == KindNotFound {
		return false, nil
	}
	return false, err
}
