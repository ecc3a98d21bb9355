package common

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// assumeRoleSessionName is the session name used when assuming the AWS
// Config execution role for cross-account evaluation.
const assumeRoleSessionName = "configLambdaExecution"

// LoadConfig loads the AWS SDK configuration from the standard shared
// config and credentials files. Pass an empty profile to load the default
// profile.
func LoadConfig(ctx context.Context, profile string) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS configuration: %w", err)
	}

	// Fall back to us-east-1 when no region is configured so that all SDK
	// clients can be constructed successfully. IAM is a global service and
	// any region works for it.
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	return cfg, nil
}

// AssumeExecutionRole returns a copy of cfg whose credentials come from
// assuming the given role through STS. Used in cross-account mode, where
// the evaluator runs with the AWS Config service role attached to the
// monitored account.
func AssumeExecutionRole(cfg aws.Config, roleARN string) aws.Config {
	stsClient := sts.NewFromConfig(cfg)
	provider := stscreds.NewAssumeRoleProvider(stsClient, roleARN, func(o *stscreds.AssumeRoleOptions) {
		o.RoleSessionName = assumeRoleSessionName
	})

	assumed := cfg
	assumed.Credentials = aws.NewCredentialsCache(provider)
	return assumed
}
