// Package queue holds test doubles shared by queue consumers.
package queue

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/JakeFAU/vendor-menu-cache/internal/menu"
)

// MockEnqueuer is a testify mock of menu.Enqueuer.
type MockEnqueuer struct {
	mock.Mock
}

var _ menu.Enqueuer = (*MockEnqueuer)(nil)

// Enqueue is the mock implementation of the Enqueue method.
func (m *MockEnqueuer) Enqueue(ctx context.Context, job menu.ScrapeJob) error {
	args := m.Called(ctx, job)
	return args.Error(0) //nolint:wrapcheck
}
