package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"mestrai-server/shared/interfaces"
	"mestrai-server/shared/models"
)

// MockCharacterRepository is a mock type for the CharacterRepository type
type MockCharacterRepository struct {
	mock.Mock
}

func (_m *MockCharacterRepository) Get(ctx context.Context, campaignID, participantID string) (*models.Character, error) {
	ret := _m.Called(ctx, campaignID, participantID)
	var r0 *models.Character
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.Character)
	}
	return r0, ret.Error(1)
}

func (_m *MockCharacterRepository) Save(ctx context.Context, character *models.Character) error {
	ret := _m.Called(ctx, character)
	return ret.Error(0)
}

func (_m *MockCharacterRepository) ListByCampaign(ctx context.Context, campaignID string) ([]*models.Character, error) {
	ret := _m.Called(ctx, campaignID)
	var r0 []*models.Character
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]*models.Character)
	}
	return r0, ret.Error(1)
}

// MockCampaignRepository is a mock type for the CampaignRepository type
type MockCampaignRepository struct {
	mock.Mock
}

func (_m *MockCampaignRepository) GetByID(ctx context.Context, campaignID string) (*models.Campaign, error) {
	ret := _m.Called(ctx, campaignID)
	var r0 *models.Campaign
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.Campaign)
	}
	return r0, ret.Error(1)
}

func (_m *MockCampaignRepository) ListParticipants(ctx context.Context, campaignID string, status models.ParticipantStatus) ([]models.Participant, error) {
	ret := _m.Called(ctx, campaignID, status)
	var r0 []models.Participant
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]models.Participant)
	}
	return r0, ret.Error(1)
}

// MockRateStore is a mock type for the RateStore type
type MockRateStore struct {
	mock.Mock
}

func (_m *MockRateStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	ret := _m.Called(ctx, key, limit, window)
	return ret.Bool(0), ret.Error(1)
}

var (
	_ interfaces.CharacterRepository = (*MockCharacterRepository)(nil)
	_ interfaces.CampaignRepository  = (*MockCampaignRepository)(nil)
	_ interfaces.RateStore           = (*MockRateStore)(nil)
)
