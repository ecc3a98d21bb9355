// Package configitem normalizes AWS Config configuration items for IAM
// users and roles into the engine's Principal model. Two source shapes
// exist: the raw JSON item embedded in a change notification, and the
// API model returned by the configuration history lookup for oversized
// notifications. Both converge on the same canonical form.
package configitem

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cfgtypes "github.com/aws/aws-sdk-go-v2/service/configservice/types"

	"github.com/pankaj-dahiya-devops/iam-policy-guard/internal/models"
)

// ErrMalformedResource marks a configuration item missing fields the
// engine cannot work without. This is a defensive check; well-formed
// notifications never trip it.
var ErrMalformedResource = errors.New("malformed configuration item")

// rawItem is the wire shape of a configuration item as embedded in a
// change notification.
type rawItem struct {
	ResourceType string          `json:"resourceType"`
	ResourceID   string          `json:"resourceId"`
	ResourceName string          `json:"resourceName"`
	AccountID    string          `json:"awsAccountId"`
	ARN          string          `json:"ARN"`
	CaptureTime  string          `json:"configurationItemCaptureTime"`
	Status       string          `json:"configurationItemStatus"`
	ConfigHash   string          `json:"configurationStateMd5Hash"`
	Version      string          `json:"configurationItemVersion"`
	Config       json.RawMessage `json:"configuration"`
}

// iamConfiguration is the IAM-specific payload inside a configuration
// item: the directly attached managed policies and, for users, the group
// membership list.
type iamConfiguration struct {
	AttachedManagedPolicies []struct {
		PolicyARN  string `json:"policyArn"`
		PolicyName string `json:"policyName"`
	} `json:"attachedManagedPolicies"`
	GroupList []string `json:"groupList"`
}

// FromRaw normalizes the raw configuration item of a change notification
// into a Principal.
func FromRaw(data json.RawMessage) (*models.Principal, error) {
	var item rawItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResource, err)
	}
	return normalize(item, item.Config)
}

// FromAPI normalizes a configuration item returned by the configuration
// history API. Field names differ from the notification shape (accountId
// vs awsAccountId, arn vs ARN, and so on); this rename is the whole point
// of the conversion. The embedded configuration document arrives as a
// JSON string rather than an object.
func FromAPI(item cfgtypes.ConfigurationItem) (*models.Principal, error) {
	raw := rawItem{
		ResourceType: string(item.ResourceType),
		ResourceID:   aws.ToString(item.ResourceId),
		ResourceName: aws.ToString(item.ResourceName),
		AccountID:    aws.ToString(item.AccountId),
		ARN:          aws.ToString(item.Arn),
		Status:       string(item.ConfigurationItemStatus),
		ConfigHash:   aws.ToString(item.ConfigurationItemMD5Hash),
		Version:      aws.ToString(item.Version),
	}
	if item.ConfigurationItemCaptureTime != nil {
		raw.CaptureTime = canonicalTime(*item.ConfigurationItemCaptureTime)
	}
	return normalize(raw, json.RawMessage(aws.ToString(item.Configuration)))
}

// normalize applies the defensive required-field checks, parses the IAM
// configuration payload, and produces the Principal value.
func normalize(item rawItem, config json.RawMessage) (*models.Principal, error) {
	switch {
	case item.ResourceType == "":
		return nil, fmt.Errorf("%w: missing resourceType", ErrMalformedResource)
	case item.ResourceID == "":
		return nil, fmt.Errorf("%w: missing resourceId", ErrMalformedResource)
	case item.ARN == "":
		return nil, fmt.Errorf("%w: missing ARN", ErrMalformedResource)
	case item.CaptureTime == "":
		return nil, fmt.Errorf("%w: missing configurationItemCaptureTime", ErrMalformedResource)
	}

	p := &models.Principal{
		Kind:        models.PrincipalKind(item.ResourceType),
		Name:        item.ResourceName,
		ResourceID:  item.ResourceID,
		AccountID:   item.AccountID,
		ARN:         item.ARN,
		CaptureTime: item.CaptureTime,
		Status:      models.PrincipalStatus(item.Status),
		ConfigHash:  item.ConfigHash,
		Version:     item.Version,
	}

	// Deleted items carry no configuration payload; nothing more to parse.
	if len(config) == 0 || string(config) == "null" {
		return p, nil
	}

	var cfg iamConfiguration
	if err := json.Unmarshal(config, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse configuration payload: %v", ErrMalformedResource, err)
	}
	for _, policy := range cfg.AttachedManagedPolicies {
		p.AttachedPolicyARNs = append(p.AttachedPolicyARNs, policy.PolicyARN)
	}
	if p.Kind == models.KindUser {
		p.Groups = cfg.GroupList
	}
	return p, nil
}

// canonicalTime renders a capture time in the single textual form used
// across the engine: RFC 3339 in UTC.
func canonicalTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
