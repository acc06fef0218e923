package clients

import (
	"agentdms/lib/config"
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// loadAWSConfig loads the default AWS configuration for the configured region,
// pointing at LocalStack when running locally
func loadAWSConfig(cfg *config.Config) aws.Config {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		panic("failed to load AWS configuration: " + err.Error())
	}

	if cfg.IsLocal {
		awsCfg.BaseEndpoint = aws.String(cfg.LocalEndpoint)
	}

	return awsCfg
}
