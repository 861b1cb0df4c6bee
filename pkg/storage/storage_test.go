package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carecart/pkg/storage"
	"carecart/pkg/storage/memory"
)

type profile struct {
	Name string `json:"name"`
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	port := memory.New()

	var got profile
	ok, err := storage.GetJSON(ctx, port, storage.KeyRecipient, &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, storage.PutJSON(ctx, port, storage.KeyRecipient, profile{Name: "Yacine"}))
	ok, err = storage.GetJSON(ctx, port, storage.KeyRecipient, &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Yacine", got.Name)
	assert.Equal(t, []string{storage.KeyRecipient}, port.Keys())
}

func TestGetJSON_DecodeError(t *testing.T) {
	ctx := context.Background()
	port := memory.New()
	require.NoError(t, port.Set(ctx, storage.KeyCart, []byte("not-json")))

	var items []profile
	ok, err := storage.GetJSON(ctx, port, storage.KeyCart, &items)
	assert.False(t, ok)

	var decodeErr *storage.DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, storage.KeyCart, decodeErr.Key)
}
