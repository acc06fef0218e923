package clients

import (
	"agentdms/lib/config"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

func NewSSMClient(cfg *config.Config) *ssm.Client {
	return ssm.NewFromConfig(loadAWSConfig(cfg))
}
