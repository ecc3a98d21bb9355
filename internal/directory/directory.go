// Package directory enumerates the IAM principals of an account for
// sweep-style evaluations: every user and every role, each with its
// directly attached managed policies and (for users) group memberships.
package directory

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	iamsvc "github.com/aws/aws-sdk-go-v2/service/iam"

	"github.com/pankaj-dahiya-devops/iam-policy-guard/internal/models"
)

// API is the narrow IAM interface needed for principal enumeration. It
// embeds the SDK paginator clients for every listing operation used.
type API interface {
	iamsvc.ListUsersAPIClient
	iamsvc.ListRolesAPIClient
	iamsvc.ListAttachedUserPoliciesAPIClient
	iamsvc.ListAttachedRolePoliciesAPIClient
	iamsvc.ListGroupsForUserAPIClient
}

// Enumerator lists account principals through the IAM directory.
type Enumerator struct {
	client API
}

// NewEnumerator returns an Enumerator backed by the given IAM client.
func NewEnumerator(client API) *Enumerator {
	return &Enumerator{client: client}
}

// ListPrincipals returns every IAM user and role in the account as
// normalized principals, users first, each kind in the listing order the
// directory returns. The capture timestamp stamps every snapshot so
// sweep verdicts share one ordering timestamp.
//
// Any page failure aborts the enumeration: a sweep evaluated over a
// partial principal set would retract verdicts for principals that still
// exist.
func (e *Enumerator) ListPrincipals(ctx context.Context, accountID, timestamp string) ([]*models.Principal, error) {
	users, err := e.listUsers(ctx, accountID, timestamp)
	if err != nil {
		return nil, err
	}
	roles, err := e.listRoles(ctx, accountID, timestamp)
	if err != nil {
		return nil, err
	}
	return append(users, roles...), nil
}

func (e *Enumerator) listUsers(ctx context.Context, accountID, timestamp string) ([]*models.Principal, error) {
	paginator := iamsvc.NewListUsersPaginator(e.client, &iamsvc.ListUsersInput{})
	var principals []*models.Principal
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list IAM users: %w", err)
		}
		for _, u := range page.Users {
			name := aws.ToString(u.UserName)
			attached, err := e.userPolicies(ctx, name)
			if err != nil {
				return nil, err
			}
			groups, err := e.userGroups(ctx, name)
			if err != nil {
				return nil, err
			}
			principals = append(principals, &models.Principal{
				Kind:               models.KindUser,
				Name:               name,
				ResourceID:         aws.ToString(u.UserId),
				AccountID:          accountID,
				ARN:                aws.ToString(u.Arn),
				CaptureTime:        timestamp,
				Status:             models.StatusOK,
				AttachedPolicyARNs: attached,
				Groups:             groups,
			})
		}
	}
	return principals, nil
}

func (e *Enumerator) listRoles(ctx context.Context, accountID, timestamp string) ([]*models.Principal, error) {
	paginator := iamsvc.NewListRolesPaginator(e.client, &iamsvc.ListRolesInput{})
	var principals []*models.Principal
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list IAM roles: %w", err)
		}
		for _, r := range page.Roles {
			name := aws.ToString(r.RoleName)
			attached, err := e.rolePolicies(ctx, name)
			if err != nil {
				return nil, err
			}
			principals = append(principals, &models.Principal{
				Kind:               models.KindRole,
				Name:               name,
				ResourceID:         aws.ToString(r.RoleId),
				AccountID:          accountID,
				ARN:                aws.ToString(r.Arn),
				CaptureTime:        timestamp,
				Status:             models.StatusOK,
				AttachedPolicyARNs: attached,
			})
		}
	}
	return principals, nil
}

func (e *Enumerator) userPolicies(ctx context.Context, userName string) ([]string, error) {
	paginator := iamsvc.NewListAttachedUserPoliciesPaginator(e.client, &iamsvc.ListAttachedUserPoliciesInput{
		UserName: aws.String(userName),
	})
	var arns []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list attached policies for user %q: %w", userName, err)
		}
		for _, policy := range page.AttachedPolicies {
			arns = append(arns, aws.ToString(policy.PolicyArn))
		}
	}
	return arns, nil
}

func (e *Enumerator) userGroups(ctx context.Context, userName string) ([]string, error) {
	paginator := iamsvc.NewListGroupsForUserPaginator(e.client, &iamsvc.ListGroupsForUserInput{
		UserName: aws.String(userName),
	})
	var groups []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list groups for user %q: %w", userName, err)
		}
		for _, g := range page.Groups {
			groups = append(groups, aws.ToString(g.GroupName))
		}
	}
	return groups, nil
}

func (e *Enumerator) rolePolicies(ctx context.Context, roleName string) ([]string, error) {
	paginator := iamsvc.NewListAttachedRolePoliciesPaginator(e.client, &iamsvc.ListAttachedRolePoliciesInput{
		RoleName: aws.String(roleName),
	})
	var arns []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list attached policies for role %q: %w", roleName, err)
		}
		for _, policy := range page.AttachedPolicies {
			arns = append(arns, aws.ToString(policy.PolicyArn))
		}
	}
	return arns, nil
}
