package clients

import (
	"context"

	"agentdms/lib/config"

	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
)

// CognitoClientInterface is the subset of the Cognito API used for user provisioning
type CognitoClientInterface interface {
	AdminCreateUser(ctx context.Context, params *cognitoidentityprovider.AdminCreateUserInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.AdminCreateUserOutput, error)
	AdminDeleteUser(ctx context.Context, params *cognitoidentityprovider.AdminDeleteUserInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.AdminDeleteUserOutput, error)
}

// NewCognitoIdentityProviderClient creates a Cognito user pool admin client
func NewCognitoIdentityProviderClient(cfg *config.Config) *cognitoidentityprovider.Client {
	return cognitoidentityprovider.NewFromConfig(loadAWSConfig(cfg))
}
