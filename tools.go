//go:build tools

package tools

// mockery v3 is used as an installed binary; mocks are configured in
// .mockery.yml. Run: mockery (from the module root) to regenerate.
