// Package mocks provides mock implementations of core interfaces for testing.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"viral-clipper/internal/types"
)

// MockAcquirer is a mock implementation of types.Acquirer
type MockAcquirer struct {
	mock.Mock
}

func (m *MockAcquirer) Fetch(ctx context.Context, sourceRef string, workDir string) (*types.AudioAsset, error) {
	args := m.Called(ctx, sourceRef, workDir)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.AudioAsset), args.Error(1)
}

func (m *MockAcquirer) ExtractChunk(ctx context.Context, asset *types.AudioAsset, start, end float64, workDir string) (string, error) {
	args := m.Called(ctx, asset, start, end, workDir)
	return args.String(0), args.Error(1)
}

// MockBackend is a mock implementation of types.TranscriptionBackend
type MockBackend struct {
	mock.Mock
	BackendName string
}

func (m *MockBackend) Name() string {
	if m.BackendName == "" {
		return "mock"
	}
	return m.BackendName
}

func (m *MockBackend) Transcribe(ctx context.Context, audioPath string) ([]types.TranscriptSegment, error) {
	args := m.Called(ctx, audioPath)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.TranscriptSegment), args.Error(1)
}

// MockChatCompleter is a mock implementation of types.ChatCompleter
type MockChatCompleter struct {
	mock.Mock
}

func (m *MockChatCompleter) ChatCompletion(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	args := m.Called(ctx, systemPrompt, userPrompt)
	return args.String(0), args.Error(1)
}
