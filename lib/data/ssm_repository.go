package data

import (
	"agentdms/lib/constants"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/sirupsen/logrus"
)

type SSMRepository interface {
	GetParameters() (map[string]string, error)
}

type SSMClientInterface interface {
	GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
}

type SSMDao struct {
	SSM    SSMClientInterface
	Logger *logrus.Logger
}

// GetParameters loads every parameter under the application path, following NextToken pages
func (client *SSMDao) GetParameters() (map[string]string, error) {
	params := map[string]string{}
	input := &ssm.GetParametersByPathInput{
		Path:           aws.String(constants.SSM_PARAMETER_PATH),
		Recursive:      aws.Bool(true),
		WithDecryption: aws.Bool(true),
	}

	for page := 1; ; page++ {
		output, err := client.SSM.GetParametersByPath(context.TODO(), input)
		if err != nil {
			return nil, err
		}

		for _, param := range output.Parameters {
			if param.Name == nil || param.Value == nil {
				continue
			}
			params[*param.Name] = *param.Value
		}

		if output.NextToken == nil {
			break
		}
		if page > 50 {
			return nil, fmt.Errorf("too many parameter pages under %s", constants.SSM_PARAMETER_PATH)
		}

		input.NextToken = output.NextToken
	}

	client.Logger.WithField("params_count", len(params)).Debug("Loaded SSM parameters")
	return params, nil
}

// RequireParameters reports the first of the named parameters that is missing or empty
func RequireParameters(params map[string]string, names ...string) error {
	for _, name := range names {
		if params[name] == "" {
			return fmt.Errorf("required SSM parameter %s is missing", name)
		}
	}
	return nil
}
