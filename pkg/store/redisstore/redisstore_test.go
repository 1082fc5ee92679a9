package redisstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/herald/errs"
	"github.com/coachpo/herald/pkg/store"
)

var _ store.Store = (*Store)(nil)

func TestNewNormalisesPrefix(t *testing.T) {
	require.Equal(t, DefaultPrefix, New(nil, "").Prefix())
	require.Equal(t, "app", New(nil, " app: ").Prefix())
}

func TestKeyLayout(t *testing.T) {
	s := New(nil, "app")
	require.Equal(t, "app:latest", s.latestKey())
	require.Equal(t, "app:history:user.created", s.historyKey("user.created"))
	require.Equal(t, "app:group:users", s.groupKey("users"))
	require.Equal(t, "app:groups", s.groupsKey())
}

func TestEncodeDecode(t *testing.T) {
	raw, err := encode(map[string]any{"name": "e1", "n": 2})
	require.NoError(t, err)
	require.JSONEq(t, `{"name":"e1","n":2}`, raw)

	v, err := decode(raw)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"name": "e1", "n": float64(2)}, v)

	_, err = encode(make(chan int))
	require.True(t, errs.Is(err, errs.CodeStore))

	_, err = decode("{")
	require.True(t, errs.Is(err, errs.CodeStore))
}

func TestNilClient(t *testing.T) {
	ctx := context.Background()
	s := New(nil, "")

	require.True(t, errs.Is(s.Put(ctx, "e1", 1, ""), errs.CodeStore))
	_, err := s.Remove(ctx, "e1", nil, nil)
	require.True(t, errs.Is(err, errs.CodeStore))
	_, err = s.Get(ctx)
	require.True(t, errs.Is(err, errs.CodeStore))
	_, err = s.History(ctx, "e1")
	require.True(t, errs.Is(err, errs.CodeStore))
}

func TestConnectParsesURL(t *testing.T) {
	c, err := Connect(context.Background(), "redis://localhost:6380/2")
	require.NoError(t, err)
	require.Equal(t, "localhost:6380", c.Options().Addr)
	require.Equal(t, 2, c.Options().DB)
	require.NoError(t, c.Close())

	c, err = Connect(context.Background(), "localhost:6379")
	require.NoError(t, err)
	require.Equal(t, "localhost:6379", c.Options().Addr)
	require.NoError(t, c.Close())

	_, err = Connect(context.Background(), "redis://localhost:6379/notadb")
	require.Error(t, err)
}
