package aws

import (
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	trailtypes "github.com/aws/aws-sdk-go-v2/service/cloudtrail/types"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/yairfalse/vigil/types"
)

// trailEventPayload is the subset of the CloudTrail event JSON the SDK
// does not expose as struct fields
type trailEventPayload struct {
	SourceIPAddress string `json:"sourceIPAddress"`
	ErrorCode       string `json:"errorCode"`
	ErrorMessage    string `json:"errorMessage"`
}

// eventClassification maps CloudTrail API names to event types and severities
var eventClassification = map[string]struct {
	eventType string
	severity  types.Severity
}{
	"ConsoleLogin":                  {"LOGIN_ATTEMPT", types.SeverityMedium},
	"AssumeRole":                    {"LOGIN_ATTEMPT", types.SeverityLow},
	"AuthorizeSecurityGroupIngress": {"CONFIG_CHANGE", types.SeverityHigh},
	"RevokeSecurityGroupIngress":    {"CONFIG_CHANGE", types.SeverityMedium},
	"PutBucketPolicy":               {"CONFIG_CHANGE", types.SeverityHigh},
	"DeleteTrail":                   {"DEFENSE_EVASION", types.SeverityCritical},
	"StopLogging":                   {"DEFENSE_EVASION", types.SeverityCritical},
	"CreateAccessKey":               {"CREDENTIAL_ACCESS", types.SeverityHigh},
	"GetSecretValue":                {"CREDENTIAL_ACCESS", types.SeverityMedium},
	"RunInstances":                  {"RESOURCE_CREATION", types.SeverityLow},
	"TerminateInstances":            {"RESOURCE_DELETION", types.SeverityMedium},
}

func (c *Connector) convertInstance(instance ec2types.Instance) types.Resource {
	tags := make(map[string]string, len(instance.Tags))
	name := ""
	for _, tag := range instance.Tags {
		key := aws.ToString(tag.Key)
		value := aws.ToString(tag.Value)
		tags[key] = value
		if key == "Name" {
			name = value
		}
	}

	groupIDs := make([]string, 0, len(instance.SecurityGroups))
	for _, group := range instance.SecurityGroups {
		groupIDs = append(groupIDs, aws.ToString(group.GroupId))
	}

	resource := types.Resource{
		ID:               aws.ToString(instance.InstanceId),
		Name:             name,
		Type:             "ec2",
		Provider:         "aws",
		Region:           c.region,
		SecurityGroupIDs: groupIDs,
		Tags:             tags,
	}
	if instance.LaunchTime != nil {
		resource.LastAccessed = *instance.LaunchTime
	}
	return resource
}

// convertTrailEvent maps one CloudTrail event to a raw security event.
// Unclassified API calls are dropped; they are routine churn.
func (c *Connector) convertTrailEvent(event trailtypes.Event) (types.RawEvent, bool) {
	name := aws.ToString(event.EventName)
	class, ok := eventClassification[name]
	if !ok {
		return types.RawEvent{}, false
	}

	var payload trailEventPayload
	if raw := aws.ToString(event.CloudTrailEvent); raw != "" {
		// best effort; a malformed payload loses only enrichment
		_ = json.Unmarshal([]byte(raw), &payload)
	}

	severity := class.severity
	if payload.ErrorCode != "" && severity.Rank() < types.SeverityHigh.Rank() {
		// failed calls are more interesting than successful ones
		severity = types.SeverityHigh
	}

	target := ""
	for _, resource := range event.Resources {
		if id := aws.ToString(resource.ResourceName); id != "" {
			target = id
			break
		}
	}

	raw := types.RawEvent{
		Timestamp:   aws.ToTime(event.EventTime),
		Type:        class.eventType,
		Severity:    string(severity),
		SourceIP:    payload.SourceIPAddress,
		Target:      target,
		Description: fmt.Sprintf("%s by %s", name, aws.ToString(event.Username)),
		Data: map[string]any{
			"api_call":   name,
			"username":   aws.ToString(event.Username),
			"error_code": payload.ErrorCode,
		},
	}
	return raw, true
}
