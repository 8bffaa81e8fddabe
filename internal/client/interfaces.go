package client

import "context"

// CredentialingClientInterface defines the calls the service layer makes
// against the credentialing (onboarding) microservice.
type CredentialingClientInterface interface {
	PushWorkflowUpdate(ctx context.Context, payload map[string]interface{}) error
	PushWorkflowUpdateAndAppendSteps(ctx context.Context, payload map[string]interface{}) error
	TerminateOnboarding(ctx context.Context, workflowID, tenantID, authToken string) error
}

// NotifierInterface defines the notification dispatch surface.
type NotifierInterface interface {
	SendNotificationsForUserType(ctx context.Context, eventCode string, payload map[string]interface{})
}
