// Package main implements the AWS Cognito Pre-Token Generation V2.0 Lambda trigger.
//
// The trigger enriches ID and access tokens with the AgentDMS identity: the internal
// user ID that every API authorizes against, the globally held role names and the
// union of the permission names those roles grant.
//
// Role and permission claims are informational. Project scoped authorization is
// always re-derived from the database by user ID, so a stale token can never widen
// access after an administrator revokes a role.
//
// Failures never block sign in: if the profile cannot be read the event is returned
// unchanged and the API rejects the token for lack of a user_id claim.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"agentdms/lib/auth"
	"agentdms/lib/clients"
	"agentdms/lib/config"
	"agentdms/lib/data"
	"agentdms/lib/models"
	"agentdms/lib/util"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"
)

// Global variables for Lambda cold start optimization
var (
	logger         *logrus.Logger
	cfg            *config.Config
	ssmRepository  data.SSMRepository
	userRepository data.UserRepository
	ssmParams      map[string]string
	sqlDB          *sql.DB
)

// V2.0 trigger sources that accept a claims override
var validTriggerSources = map[string]bool{
	"TokenGeneration_HostedAuth":           true,
	"TokenGeneration_Authentication":       true,
	"TokenGeneration_NewPasswordChallenge": true,
	"TokenGeneration_AuthenticateDevice":   true,
	"TokenGeneration_RefreshTokens":        true,
}

// Handler processes the Cognito Pre Token Generation V2.0 trigger event
func Handler(ctx context.Context, event events.CognitoEventUserPoolsPreTokenGenV2_0) (events.CognitoEventUserPoolsPreTokenGenV2_0, error) {
	logger.WithFields(logrus.Fields{
		"trigger_source": event.TriggerSource,
		"user_pool_id":   event.UserPoolID,
		"username":       event.UserName,
		"client_id":      event.CallerContext.ClientID,
		"operation":      "Handler",
	}).Debug("Processing Cognito Pre Token Generation V2.0 event")

	if !validTriggerSources[event.TriggerSource] {
		logger.WithField("trigger_source", event.TriggerSource).Warn("Invalid trigger source for V2.0, returning event unchanged")
		return event, nil
	}

	// event.UserName carries the Cognito sub, not the email
	cognitoID := event.UserName
	if cognitoID == "" {
		logger.WithField("operation", "Handler").Error("Username (cognito_id) is empty in event")
		return event, errors.New("username cannot be empty")
	}

	profile, err := userRepository.GetUserProfile(ctx, cognitoID)
	if err != nil {
		level := logrus.ErrorLevel
		if errors.Is(err, data.ErrNotFound) {
			level = logrus.WarnLevel
		}
		logger.WithFields(logrus.Fields{
			"cognito_id": cognitoID,
			"operation":  "Handler",
			"error":      err.Error(),
		}).Log(level, "Failed to fetch user profile, proceeding without custom claims")
		return event, nil
	}

	claims := buildClaims(profile)
	event.Response.ClaimsAndScopeOverrideDetails = events.ClaimsAndScopeOverrideDetailsV2_0{
		IDTokenGeneration: events.IDTokenGenerationV2_0{
			ClaimsToAddOrOverride: claims,
			ClaimsToSuppress:      []string{},
		},
		AccessTokenGeneration: events.AccessTokenGenerationV2_0{
			ClaimsToAddOrOverride: claims,
			ClaimsToSuppress:      []string{},
			ScopesToAdd:           []string{},
			ScopesToSuppress:      []string{},
		},
		GroupOverrideDetails: events.GroupConfigurationV2_0{
			GroupsToOverride:   profile.Roles,
			IAMRolesToOverride: []string{},
		},
	}

	logger.WithFields(logrus.Fields{
		"user_id":          profile.UserID,
		"roles_count":      len(profile.Roles),
		"permission_count": len(profile.Permissions),
		"operation":        "Handler",
	}).Debug("Successfully added custom claims to token")

	return event, nil
}

// buildClaims flattens the profile into string claims. Cognito claim values must be
// scalars, so role and permission names are comma separated; auth.ExtractClaimsFromRequest
// reads that form back.
func buildClaims(profile *models.UserProfile) map[string]interface{} {
	return map[string]interface{}{
		"user_id":      strconv.FormatInt(profile.UserID, 10),
		"cognito_id":   profile.CognitoID,
		"email":        profile.Email,
		"username":     profile.Username,
		"first_name":   profile.FirstName,
		"last_name":    profile.LastName,
		"full_name":    strings.TrimSpace(profile.GetFullName()),
		"status":       profile.Status,
		"roles":        strings.Join(profile.Roles, ","),
		"permissions":  strings.Join(profile.Permissions, ","),
		"isSuperAdmin": profile.UserID == auth.SuperAdminUserID,
	}
}

// main is the Lambda function entry point
func main() {
	setup()
	lambda.Start(Handler)
}

func setup() {
	var err error

	cfg, err = config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Error reading Lambda environment")
	}

	logger = logrus.New()
	util.SetLogLevel(logger, cfg.LogLevel)
	logger.SetFormatter(&logrus.JSONFormatter{PrettyPrint: cfg.IsLocal})

	ssmRepository = &data.SSMDao{
		SSM:    clients.NewSSMClient(cfg),
		Logger: logger,
	}

	ssmParams, err = ssmRepository.GetParameters()
	if err != nil {
		logger.WithFields(logrus.Fields{
			"operation": "setup",
			"error":     err.Error(),
		}).Fatal("Error while getting SSM params from parameter store")
	}

	if err = setupPostgresSQLClient(ssmParams); err != nil {
		logger.WithFields(logrus.Fields{
			"operation": "setup",
			"error":     err.Error(),
		}).Fatal("Error setting up PostgreSQL client")
	}

	logger.WithField("operation", "setup").Info("Token Customizer Lambda initialization completed successfully")
}

func setupPostgresSQLClient(ssmParams map[string]string) error {
	var err error

	sqlDB, err = clients.NewPostgresSQLClientFromParams(ssmParams)
	if err != nil {
		return fmt.Errorf("error creating PostgreSQL client: %w", err)
	}

	userRepository = &data.UserDao{
		DB:     sqlDB,
		Logger: logger,
	}
	return nil
}
