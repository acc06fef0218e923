// Package main implements the AWS Cognito Post-Confirmation Lambda trigger.
//
// Every confirmed Cognito account gets an iam.users row. Users invited by an
// administrator already have a pending row, which is activated. Self-registered
// users get a new active row holding no roles, so they can sign in but are
// denied everything until an administrator assigns roles.
//
// The trigger always returns the event to Cognito. A failure here is logged with
// a correlation ID and repaired by an administrator; it never blocks confirmation.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"agentdms/lib/clients"
	"agentdms/lib/config"
	"agentdms/lib/data"
	"agentdms/lib/models"
	"agentdms/lib/util"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/google/uuid"
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

// Handler processes the Cognito Post-Confirmation event
func Handler(ctx context.Context, event events.CognitoEventUserPoolsPostConfirmation) (events.CognitoEventUserPoolsPostConfirmation, error) {
	correlationID := uuid.New().String()
	log := logger.WithFields(logrus.Fields{
		"correlation_id": correlationID,
		"trigger_source": event.TriggerSource,
		"operation":      "Handler",
	})

	user, err := extractSignupUser(event)
	if err != nil {
		log.WithError(err).Error("Failed to extract signup data from Cognito event")
		return event, nil
	}

	log.WithFields(logrus.Fields{
		"cognito_id": user.CognitoID,
		"email":      user.Email,
	}).Debug("Processing Cognito Post-Confirmation event")

	confirmed, err := userRepository.ConfirmSignup(ctx, user)
	if err != nil {
		log.WithFields(logrus.Fields{
			"cognito_id": user.CognitoID,
			"error":      err.Error(),
		}).Error("Failed to process signup, user may need admin assistance")
		return event, nil
	}

	log.WithFields(logrus.Fields{
		"user_id":    confirmed.UserID,
		"cognito_id": confirmed.CognitoID,
	}).Info("Signup confirmed")
	return event, nil
}

// extractSignupUser reads the new account from the event. event.UserName is the Cognito sub.
// Names come from the standard attributes and fall back to client metadata sent by the sign up form.
func extractSignupUser(event events.CognitoEventUserPoolsPostConfirmation) (*models.User, error) {
	cognitoID := event.UserName
	if cognitoID == "" {
		return nil, fmt.Errorf("cognito ID (username) is empty")
	}

	attributes := event.Request.UserAttributes
	email := strings.TrimSpace(attributes["email"])
	if email == "" {
		return nil, fmt.Errorf("email attribute is missing from Cognito event")
	}

	firstName := firstNonEmpty(attributes["given_name"], event.Request.ClientMetadata["firstName"])
	lastName := firstNonEmpty(attributes["family_name"], event.Request.ClientMetadata["lastName"])

	return &models.User{
		CognitoID: cognitoID,
		Email:     email,
		Username:  email,
		FirstName: firstName,
		LastName:  lastName,
		Status:    models.UserStatusActive,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
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

	sqlDB, err = clients.NewPostgresSQLClientFromParams(ssmParams)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"operation": "setup",
			"error":     err.Error(),
		}).Fatal("Error setting up PostgreSQL client")
	}

	userRepository = &data.UserDao{
		DB:     sqlDB,
		Logger: logger,
	}

	logger.WithField("operation", "setup").Info("User Signup Lambda initialization completed successfully")
}
