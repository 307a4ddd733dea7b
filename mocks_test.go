package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
)

// testContext stands in for testing.T.Context on toolchains that predate
// it: the context is canceled once the test and its subtests finish.
func testContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return ctx
}

// testConfig returns a Config suitable for tests: quiet logging, no
// database, zero reveal delay so game loops finish immediately.
func testConfig() *Config {
	return &Config{
		bind:          "127.0.0.1",
		clueAPI:       "http://127.0.0.1:1",
		clueTimeout:   time.Second,
		maxConnsPerIP: 10,
		maxRooms:      10,
		port:          8080,
		revealTimeout: 0,
		roomTimeout:   2 * time.Hour,
		sweepInterval: time.Minute,
	}
}

// --- titleStore ---

type MockTitleStore struct {
	mock.Mock
}

func (m *MockTitleStore) randomTitle(_ context.Context) (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func (m *MockTitleStore) suggest(_ context.Context, query string) ([]string, error) {
	args := m.Called(query)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockTitleStore) count(_ context.Context) (int, error) {
	args := m.Called()
	return args.Int(0), args.Error(1)
}

func (m *MockTitleStore) close() {
	m.Called()
}

// --- clueProvider ---

type MockClueProvider struct {
	mock.Mock
}

func (m *MockClueProvider) findSongs(_ context.Context, album string) ([]songCandidate, error) {
	args := m.Called(album)
	return args.Get(0).([]songCandidate), args.Error(1)
}
