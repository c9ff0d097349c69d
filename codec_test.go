package lite3

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/fleetcontrolsio/lite3/internal/kvtest"
)

type profile struct {
	Name string   `json:"name"`
	Age  int      `json:"age"`
	Tags []string `json:"tags"`
}

func TestJSONCodec(t *testing.T) {
	node := kvtest.NewNode(t, 1)
	conn := connTo(node, testOptions())
	ctx := t.Context()

	in := profile{Name: "ada", Age: 36, Tags: []string{"math"}}
	require.NoError(t, PutJSON(ctx, conn, "user:1", in))

	out, err := GetJSON[profile](ctx, conn, "user:1")
	require.NoError(t, err)
	assert.Equal(t, in, out)

	// patch and JSON helpers see the same document
	require.NoError(t, conn.PatchInt(ctx, "user:1", "age", 37))
	out, err = GetJSON[profile](ctx, conn, "user:1")
	require.NoError(t, err)
	assert.Equal(t, 37, out.Age)
}

func TestJSONCodec_Errors(t *testing.T) {
	node := kvtest.NewNode(t, 1)
	conn := connTo(node, testOptions())
	ctx := t.Context()

	err := PutJSON(ctx, conn, "bad", func() {})
	assert.Equal(t, KindSerialization, KindOf(err))
	assert.Empty(t, node.Requests())

	require.NoError(t, conn.Put(ctx, "raw", []byte{0xff, 0x00}))
	_, err = GetJSON[profile](ctx, conn, "raw")
	assert.Equal(t, KindSerialization, KindOf(err))

	_, err = GetJSON[profile](ctx, conn, "missing")
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestProtoCodec(t *testing.T) {
	node := kvtest.NewNode(t, 1)
	conn := connTo(node, testOptions())
	ctx := t.Context()

	require.NoError(t, PutProto(ctx, conn, "counter", wrapperspb.Int64(42)))

	var out wrapperspb.Int64Value
	require.NoError(t, GetProto(ctx, conn, "counter", &out))
	assert.Equal(t, int64(42), out.GetValue())

	doc, err := structpb.NewStruct(map[string]any{"name": "ada", "age": 36})
	require.NoError(t, err)
	require.NoError(t, PutProto(ctx, conn, "doc", doc))

	var got structpb.Struct
	require.NoError(t, GetProto(ctx, conn, "doc", &got))
	assert.Equal(t, "ada", got.GetFields()["name"].GetStringValue())
}

func TestProtoCodec_DecodeError(t *testing.T) {
	node := kvtest.NewNode(t, 1)
	conn := connTo(node, testOptions())
	ctx := t.Context()

	// a truncated varint
	require.NoError(t, conn.Put(ctx, "bad", []byte{0x08, 0xff}))

	var out wrapperspb.Int64Value
	assert.Equal(t, KindSerialization, KindOf(GetProto(ctx, conn, "bad", &out)))
}

func TestContains(t *testing.T) {
	node := kvtest.NewNode(t, 1)
	conn := connTo(node, testOptions())
	ctx := t.Context()

	ok, err := Contains(ctx, conn, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, conn.Put(ctx, "k", []byte{}))
	ok, err = Contains(ctx, conn, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = Contains(ctx, NewConn("127.0.0.1", closedPort(t), testOptions()), "k")
	assert.Equal(t, KindConnectionRefused, KindOf(err))
}
