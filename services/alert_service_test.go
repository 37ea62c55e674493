package services

import (
	"context"
	"testing"

	"github.com/firstnattapon/24wash-backend/config"
	"github.com/firstnattapon/24wash-backend/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/resend/resend-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func init() {
	logger.IsTest = true
}

// Mock Resend emails service
type mockEmailsService struct {
	mock.Mock
}

func (m *mockEmailsService) Send(params *resend.SendEmailRequest) (*resend.SendEmailResponse, error) {
	args := m.Called(params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resend.SendEmailResponse), args.Error(1)
}

func (m *mockEmailsService) SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resend.SendEmailResponse), args.Error(1)
}

func (m *mockEmailsService) Update(params *resend.UpdateEmailRequest) (*resend.UpdateEmailResponse, error) {
	args := m.Called(params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resend.UpdateEmailResponse), args.Error(1)
}

func (m *mockEmailsService) UpdateWithContext(ctx context.Context, params *resend.UpdateEmailRequest) (*resend.UpdateEmailResponse, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resend.UpdateEmailResponse), args.Error(1)
}

func (m *mockEmailsService) Cancel(id string) (*resend.CancelScheduledEmailResponse, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resend.CancelScheduledEmailResponse), args.Error(1)
}

func (m *mockEmailsService) CancelWithContext(ctx context.Context, id string) (*resend.CancelScheduledEmailResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resend.CancelScheduledEmailResponse), args.Error(1)
}

func (m *mockEmailsService) Get(id string) (*resend.Email, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resend.Email), args.Error(1)
}

func (m *mockEmailsService) GetWithContext(ctx context.Context, id string) (*resend.Email, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resend.Email), args.Error(1)
}

// Mock registry that doesn't actually register metrics
type mockRegistry struct{}

func (m *mockRegistry) Register(c prometheus.Collector) error   { return nil }
func (m *mockRegistry) MustRegister(cs ...prometheus.Collector) {}
func (m *mockRegistry) Unregister(c prometheus.Collector) bool  { return true }

func testAlertConfig() *config.AlertConfig {
	return &config.AlertConfig{
		ResendAPIKey:  "test-api-key",
		FromName:      "24WASH Bot",
		FromAddress:   "bot@example.com",
		OperatorEmail: "operator@example.com",
	}
}

func TestNewAlertService(t *testing.T) {
	service := NewAlertServiceWithRegistry(testAlertConfig(), &mockRegistry{})

	assert.NotNil(t, service)
	assert.NotNil(t, service.client)
	assert.NotNil(t, service.metrics)
}

func TestNotifySystemError(t *testing.T) {
	service := NewAlertServiceWithRegistry(testAlertConfig(), &mockRegistry{})

	mockEmails := new(mockEmailsService)
	mockEmails.On("SendWithContext", mock.Anything, mock.MatchedBy(func(params *resend.SendEmailRequest) bool {
		return params.To[0] == "operator@example.com" &&
			params.Subject == "[24WASH] Command dispatch failed"
	})).Return(&resend.SendEmailResponse{Id: "alert-1"}, nil)
	service.client.Emails = mockEmails

	service.NotifySystemError(context.Background(), "Command dispatch failed", "queue write failed")

	mockEmails.AssertExpectations(t)
}

func TestNotifySystemError_SendFailureIsSwallowed(t *testing.T) {
	service := NewAlertServiceWithRegistry(testAlertConfig(), &mockRegistry{})

	mockEmails := new(mockEmailsService)
	mockEmails.On("SendWithContext", mock.Anything, mock.Anything).
		Return(nil, assert.AnError)
	service.client.Emails = mockEmails

	// must not panic or propagate
	service.NotifySystemError(context.Background(), "Slip processing failed", "verifier unreachable")

	mockEmails.AssertExpectations(t)
}
