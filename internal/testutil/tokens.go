// Package testutil provides testing utilities for the qa-handoff project.
package testutil

// Safe test credentials that won't trigger secret scanning.
// These are intentionally simple and obviously fake.
const (
	// FakeAsanaAccessToken is a safe test token for Asana API authentication.
	FakeAsanaAccessToken = "test-asana-access-token"

	// FakeAsanaWorkspaceID is a safe test workspace GID for Asana.
	FakeAsanaWorkspaceID = "1234567890"

	// FakeAsanaWebhookSecret is a safe test X-Hook-Secret for Asana webhooks.
	FakeAsanaWebhookSecret = "test-asana-webhook-secret"

	// FakeGraphToken is a safe test bearer token for the Graph drive API.
	FakeGraphToken = "test-graph-access-token"

	// FakeClientSecret is a safe test OAuth client secret.
	FakeClientSecret = "test-client-secret"

	// FakeTriggerSecret is a safe test shared secret for the job trigger.
	FakeTriggerSecret = "test-trigger-secret"

	// FakeGitHubToken is a safe test token for GitHub API authentication.
	FakeGitHubToken = "test-github-token"

	// FakeS3AccessKey is a safe test S3 access key ID.
	FakeS3AccessKey = "test-s3-access-key"

	// FakeS3SecretKey is a safe test S3 secret access key.
	FakeS3SecretKey = "test-s3-secret-key"
)
