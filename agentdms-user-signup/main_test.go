package main

import (
	"context"
	"errors"
	"testing"

	"agentdms/lib/models"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserRepository struct {
	confirmed []*models.User
	err       error
}

func (f *fakeUserRepository) GetUserProfile(ctx context.Context, cognitoID string) (*models.UserProfile, error) {
	return nil, errors.New("not used")
}

func (f *fakeUserRepository) ConfirmSignup(ctx context.Context, user *models.User) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	user.UserID = int64(len(f.confirmed) + 10)
	f.confirmed = append(f.confirmed, user)
	return user, nil
}

func setupTest(t *testing.T) *fakeUserRepository {
	t.Helper()
	logger = logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	repo := &fakeUserRepository{}
	userRepository = repo
	return repo
}

func confirmationEvent(userName string, attributes, metadata map[string]string) events.CognitoEventUserPoolsPostConfirmation {
	var event events.CognitoEventUserPoolsPostConfirmation
	event.TriggerSource = "PostConfirmation_ConfirmSignUp"
	event.UserName = userName
	event.Request.UserAttributes = attributes
	event.Request.ClientMetadata = metadata
	return event
}

func TestHandlerConfirmsSignup(t *testing.T) {
	//Arrange
	repo := setupTest(t)
	event := confirmationEvent("sub-ana",
		map[string]string{"email": "ana@example.com", "given_name": "Ana"},
		map[string]string{"firstName": "Ignored", "lastName": "Diaz"})

	//Act
	result, err := Handler(context.Background(), event)

	//Assert
	require.NoError(t, err)
	assert.Equal(t, event, result)
	require.Len(t, repo.confirmed, 1)
	user := repo.confirmed[0]
	assert.Equal(t, "sub-ana", user.CognitoID)
	assert.Equal(t, "ana@example.com", user.Username)
	assert.Equal(t, "Ana", user.FirstName)
	assert.Equal(t, "Diaz", user.LastName)
	assert.Equal(t, models.UserStatusActive, user.Status)
}

func TestHandlerAlwaysReturnsEvent(t *testing.T) {
	tests := []struct {
		name       string
		userName   string
		attributes map[string]string
		repoErr    error
	}{
		{name: "missing username", attributes: map[string]string{"email": "a@example.com"}},
		{name: "missing email", userName: "sub-a", attributes: map[string]string{}},
		{name: "database failure", userName: "sub-a", attributes: map[string]string{"email": "a@example.com"}, repoErr: errors.New("connection refused")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := setupTest(t)
			repo.err = tt.repoErr
			event := confirmationEvent(tt.userName, tt.attributes, nil)

			result, err := Handler(context.Background(), event)

			require.NoError(t, err)
			assert.Equal(t, event, result)
			assert.Empty(t, repo.confirmed)
		})
	}
}

func TestExtractSignupUserWithoutNames(t *testing.T) {
	user, err := extractSignupUser(confirmationEvent("sub-b", map[string]string{"email": " b@example.com "}, nil))

	require.NoError(t, err)
	assert.Equal(t, "b@example.com", user.Email)
	assert.Empty(t, user.FirstName)
	assert.Empty(t, user.LastName)
}
