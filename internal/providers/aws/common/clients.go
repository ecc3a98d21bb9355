package common

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	configsvc "github.com/aws/aws-sdk-go-v2/service/configservice"
	iamsvc "github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// ClientSet holds the initialised AWS service clients for one invocation:
// IAM for the identity directory, Config for history, prior results, and
// submission, and STS for cross-account role assumption. Consumers depend
// on their own narrow interfaces, which the concrete clients satisfy.
type ClientSet struct {
	IAM           *iamsvc.Client
	ConfigService *configsvc.Client
	STS           *sts.Client
}

// ClientFactory creates a ClientSet from an aws.Config.
// Swap this in tests to inject fake clients.
type ClientFactory func(cfg aws.Config) *ClientSet

// NewClientSet is the production ClientFactory. It constructs real AWS
// SDK clients from cfg.
func NewClientSet(cfg aws.Config) *ClientSet {
	return &ClientSet{
		IAM:           iamsvc.NewFromConfig(cfg),
		ConfigService: configsvc.NewFromConfig(cfg),
		STS:           sts.NewFromConfig(cfg),
	}
}
