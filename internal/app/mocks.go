package app

import "context"

// MockSchemaEnsurer is a test double shared with the app tests.
type MockSchemaEnsurer struct {
	EnsureSchemaErr error
	Calls           int
}

func (m *MockSchemaEnsurer) EnsureSchema(ctx context.Context) error {
	m.Calls++
	return m.EnsureSchemaErr
}
