package storage_test

import (
	"testing"

	"chatello/gateway/pkg/storage"
	"chatello/gateway/pkg/storage/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storage.Store {
		return storage.NewMemoryStore()
	})
}

func TestMemoryStore_PingAfterClose(t *testing.T) {
	s := storage.NewMemoryStore()
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Ping(t.Context()); err == nil {
		t.Error("Expected Ping to fail after Close")
	}
}
