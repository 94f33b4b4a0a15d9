package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"docvault/storage"
)

type MockReplicator struct {
	mock.Mock
}

func (m *MockReplicator) Put(ctx context.Context, key string, r io.Reader, size int64) (storage.ObjectInfo, error) {
	args := m.Called(ctx, key, r, size)
	return args.Get(0).(storage.ObjectInfo), args.Error(1)
}

func (m *MockReplicator) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockReplicator) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}
