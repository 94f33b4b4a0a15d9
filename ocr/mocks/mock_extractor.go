package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"docvault/ocr"
)

type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, r io.Reader, contentType string) (*ocr.Result, error) {
	args := m.Called(ctx, r, contentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ocr.Result), args.Error(1)
}
