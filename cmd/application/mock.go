package application

import (
	"github.com/rs/zerolog"

	"github.com/agentstation/authrelay/pkg/client"
)

// Mock is an Application whose methods can be replaced per test. A nil
// function field yields a default value.
//
//	mock := &application.Mock{
//	    BaseURL: srv.URL,
//	    OutputFormatFunc: func() string { return "json" },
//	}
//	cmd := history.NewCommand(mock)
type Mock struct {
	// BaseURL is used by Client when ClientFunc is nil.
	BaseURL string

	ClientFunc       func(opts ...client.Option) (*client.Client, error)
	LoggerFunc       func() *zerolog.Logger
	OutputFormatFunc func() string
	VersionFunc      func() string
	CommitFunc       func() string
	DateFunc         func() string
	BuiltByFunc      func() string
}

// Client returns a client from ClientFunc, or one for BaseURL.
func (m *Mock) Client(opts ...client.Option) (*client.Client, error) {
	if m.ClientFunc != nil {
		return m.ClientFunc(opts...)
	}
	return client.New(m.BaseURL, opts...)
}

// Logger returns a logger using the mock function or a no-op logger.
func (m *Mock) Logger() *zerolog.Logger {
	if m.LoggerFunc != nil {
		return m.LoggerFunc()
	}
	logger := zerolog.Nop()
	return &logger
}

// OutputFormat returns output format using the mock function or "table".
func (m *Mock) OutputFormat() string {
	if m.OutputFormatFunc != nil {
		return m.OutputFormatFunc()
	}
	return "table"
}

// Version returns version using the mock function or "dev".
func (m *Mock) Version() string {
	if m.VersionFunc != nil {
		return m.VersionFunc()
	}
	return "dev"
}

// Commit returns commit using the mock function or "unknown".
func (m *Mock) Commit() string {
	if m.CommitFunc != nil {
		return m.CommitFunc()
	}
	return "unknown"
}

// Date returns date using the mock function or "unknown".
func (m *Mock) Date() string {
	if m.DateFunc != nil {
		return m.DateFunc()
	}
	return "unknown"
}

// BuiltBy returns builtBy using the mock function or "test".
func (m *Mock) BuiltBy() string {
	if m.BuiltByFunc != nil {
		return m.BuiltByFunc()
	}
	return "test"
}

var _ Application = (*Mock)(nil)
