package testutil

import (
	"context"
	"strings"

	"github.com/hupe1980/invoicemesh/core"
	"github.com/hupe1980/invoicemesh/model"
	"github.com/stretchr/testify/mock"
)

// MockBackend is a testify mock implementing model.Model.
//
//	b := new(testutil.MockBackend)
//	b.On("Complete", mock.Anything, testutil.PromptContains("Classify")).Return(model.Response{Text: `{}`}, nil)
type MockBackend struct {
	mock.Mock
}

var _ model.Model = (*MockBackend)(nil)

// Complete implements model.Model.
func (m *MockBackend) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(model.Response)
	return resp, args.Error(1)
}

// Info implements model.Model.
func (m *MockBackend) Info() model.Info {
	return model.Info{Name: "mock-backend", Provider: "mock", SupportsImages: true}
}

// PromptContains matches requests whose text parts contain s.
func PromptContains(s string) any {
	return mock.MatchedBy(func(req model.Request) bool {
		return strings.Contains(core.PromptText(req.Parts), s)
	})
}

// JSON wraps text into a backend response.
func JSON(text string) model.Response {
	return model.Response{Text: text, Model: "mock-backend", FinishReason: "stop"}
}
