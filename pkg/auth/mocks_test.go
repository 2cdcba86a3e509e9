package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockStorage is a mock implementation of Storage.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) CreateUser(ctx context.Context, user *User, passwordHash []byte) error {
	args := m.Called(ctx, user, passwordHash)
	return args.Error(0)
}

func (m *MockStorage) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *MockStorage) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *MockStorage) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *MockStorage) UpdateUserEmail(ctx context.Context, id uuid.UUID, email string, confirmed bool) error {
	args := m.Called(ctx, id, email, confirmed)
	return args.Error(0)
}

func (m *MockStorage) SetEmailConfirmed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStorage) GetPasswordHash(ctx context.Context, userID uuid.UUID) ([]byte, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockStorage) SetPasswordHash(ctx context.Context, userID uuid.UUID, hash []byte) error {
	args := m.Called(ctx, userID, hash)
	return args.Error(0)
}

func (m *MockStorage) GetUserByProvider(ctx context.Context, provider, providerUserID string) (*User, error) {
	args := m.Called(ctx, provider, providerUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *MockStorage) StoreProviderLink(ctx context.Context, link ProviderLink) error {
	args := m.Called(ctx, link)
	return args.Error(0)
}

func (m *MockStorage) RemoveProviderLink(ctx context.Context, userID uuid.UUID, provider string) error {
	args := m.Called(ctx, userID, provider)
	return args.Error(0)
}

func (m *MockStorage) ListProviderLinks(ctx context.Context, userID uuid.UUID) ([]ProviderLink, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ProviderLink), args.Error(1)
}

// MockNotifier is a mock implementation of Notifier.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendResetEmail(ctx context.Context, to, token string, expiresAt time.Time) error {
	args := m.Called(ctx, to, token, expiresAt)
	return args.Error(0)
}

func (m *MockNotifier) SendConfirmationEmail(ctx context.Context, to, token string, expiresAt time.Time) error {
	args := m.Called(ctx, to, token, expiresAt)
	return args.Error(0)
}

// MockAdapter is a mock implementation of ProviderAdapter.
type MockAdapter struct {
	mock.Mock
	name string
}

func (m *MockAdapter) Name() string {
	return m.name
}

func (m *MockAdapter) VerifyAssertion(ctx context.Context, assertion string) (ProviderProfile, error) {
	args := m.Called(ctx, assertion)
	return args.Get(0).(ProviderProfile), args.Error(1)
}
