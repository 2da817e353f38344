package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/nedpals/nfc-session/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockHandlerFunc(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
	return nil
}

func errorHandlerFunc(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
	return errors.New("test error")
}

func TestHandlerRegistry_Handle(t *testing.T) {
	registry := NewHandlerRegistry()

	require.NoError(t, registry.Handle("test", mockHandlerFunc))
	assert.Error(t, registry.Handle("nil", nil))
	assert.Error(t, registry.Handle("", mockHandlerFunc))
	assert.Error(t, registry.Handle("test", errorHandlerFunc), "duplicate registration")
}

func TestHandlerRegistry_Get(t *testing.T) {
	registry := NewHandlerRegistry()
	require.NoError(t, registry.Handle("fail", errorHandlerFunc))

	handler, ok := registry.Get("fail")
	require.True(t, ok)
	assert.EqualError(t, handler(context.Background(), nil, protocol.WebSocketRequest{}), "test error")

	_, ok = registry.Get("missing")
	assert.False(t, ok)
}

func TestHandlerRegistry_MessageTypes(t *testing.T) {
	registry := NewHandlerRegistry()
	for _, typ := range []string{"status", "armRead", "disarm"} {
		require.NoError(t, registry.Handle(typ, mockHandlerFunc))
	}
	assert.Equal(t, []string{"armRead", "disarm", "status"}, registry.MessageTypes())
}

func TestHandlerRegistry_Concurrent(t *testing.T) {
	registry := NewHandlerRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			registry.Handle(fmt.Sprintf("type-%d", i), mockHandlerFunc)
		}(i)
		go func(i int) {
			defer wg.Done()
			registry.Get(fmt.Sprintf("type-%d", i))
		}(i)
	}
	wg.Wait()
	assert.Len(t, registry.MessageTypes(), 50)
}
