// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareGate Contributors

// Package mocks provides testify doubles for the auth package ports.
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/caregate/caregate/internal/auth"
)

// MockDirectory is a mock implementation of auth.Directory.
type MockDirectory struct {
	mock.Mock
}

type mockConstructorTestingT interface {
	mock.TestingT
	Cleanup(func())
}

// NewMockDirectory creates a MockDirectory whose expectations are asserted
// during test cleanup.
func NewMockDirectory(t mockConstructorTestingT) *MockDirectory {
	m := &MockDirectory{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockDirectory) FindByUsername(ctx context.Context, username string) (*auth.UserRecord, error) {
	args := m.Called(ctx, username)
	var user *auth.UserRecord
	if v := args.Get(0); v != nil {
		user = v.(*auth.UserRecord)
	}
	return user, args.Error(1)
}

func (m *MockDirectory) FindByID(ctx context.Context, id ulid.ULID) (*auth.UserRecord, error) {
	args := m.Called(ctx, id)
	var user *auth.UserRecord
	if v := args.Get(0); v != nil {
		user = v.(*auth.UserRecord)
	}
	return user, args.Error(1)
}

func (m *MockDirectory) UpdateLastLogin(ctx context.Context, id ulid.ULID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockDirectory) UpdatePasswordHash(ctx context.Context, id ulid.ULID, hash string) error {
	args := m.Called(ctx, id, hash)
	return args.Error(0)
}

func (m *MockDirectory) FindAssignedClinician(ctx context.Context, patientID ulid.ULID) (ulid.ULID, error) {
	args := m.Called(ctx, patientID)
	var id ulid.ULID
	if v := args.Get(0); v != nil {
		id = v.(ulid.ULID)
	}
	return id, args.Error(1)
}
