package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	registry := NewRegistry()
	bank := &stubJob{name: "bank-reconciliation"}
	pdf := &stubJob{name: "missing-pdf"}
	require.NoError(t, registry.Register(bank))
	require.NoError(t, registry.Register(pdf))

	jobs := registry.Jobs()
	require.Len(t, jobs, 2)
	assert.Same(t, bank, jobs[0])
	assert.Same(t, pdf, jobs[1])
	assert.Equal(t, []string{"bank-reconciliation", "missing-pdf"}, registry.Names())

	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0], "internal slice leaked")
}

func TestRegistryRejectsDuplicateAndBlankNames(t *testing.T) {
	registry := NewRegistry(&stubJob{name: "missing-invoice"})

	err := registry.Register(&stubJob{name: "missing-invoice"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	require.Error(t, registry.Register(&stubJob{name: "  "}))
	require.Error(t, registry.Register(nil))
	assert.Len(t, registry.Jobs(), 1)
}

func TestNewRegistrySkipsRepeatedJobs(t *testing.T) {
	registry := NewRegistry(&stubJob{name: "a"}, nil, &stubJob{name: "a"}, &stubJob{name: "b"})
	assert.Equal(t, []string{"a", "b"}, registry.Names())
}
