package main

import (
	"context"
	"net/http"
	"strings"

	"agentdms/lib/clients"
	"agentdms/lib/config"
	"agentdms/lib/constants"
	"agentdms/lib/data"
	"agentdms/lib/util"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"
)

const (
	allowHeaders = "Content-Type,X-Amz-Date,Authorization,X-Api-Key,X-Amz-Security-Token,x-retry"
	allowMethods = "GET, PUT, DELETE, POST, OPTIONS"
)

var (
	logger         *logrus.Logger
	cfg            *config.Config
	ssmRepository  data.SSMRepository
	ssmParams      map[string]string
	allowedOrigins []string
)

// Handler answers CORS preflight requests for origins listed in ALLOWED_ORIGINS
func Handler(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	requestOrigin := headerValue(request.Headers, "origin")
	if requestOrigin == "" {
		logger.Warn("origin is not present in the request headers")
		return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest}, nil
	}

	for _, allowedOrigin := range allowedOrigins {
		if allowedOrigin == "*" || allowedOrigin == requestOrigin {
			return events.APIGatewayProxyResponse{
				StatusCode: http.StatusOK,
				Headers: map[string]string{
					"Access-Control-Allow-Origin":      requestOrigin,
					"Access-Control-Allow-Headers":     allowHeaders,
					"Access-Control-Allow-Methods":     allowMethods,
					"Access-Control-Allow-Credentials": "true",
					"Vary":                             "Origin",
				},
			}, nil
		}
	}

	logger.WithField("origin", requestOrigin).Warn("Unauthorized origin")
	return events.APIGatewayProxyResponse{StatusCode: http.StatusForbidden}, nil
}

// headerValue looks a header up case-insensitively; API Gateway preserves client casing
func headerValue(headers map[string]string, name string) string {
	for key, value := range headers {
		if strings.EqualFold(key, name) {
			return value
		}
	}
	return ""
}

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
			"error": err.Error(),
		}).Fatal("Error while getting ssm params from param store")
	}
	allowedOrigins = util.SplitCSV(ssmParams[constants.ALLOWED_ORIGINS])
}
