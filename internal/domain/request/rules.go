package request

import (
	"strings"
	"time"
)

// SupportMonths is the support coverage window granted with every approved
// request, counted from creation.
const SupportMonths = 6

// HasActionableField reports whether a submission names anything the
// fulfillment flow can act on: a principal to grant, a recipient to notify,
// or a pre-issued credential to deliver.
func HasActionableField(githubUsername, email, dockerToken string) bool {
	return strings.TrimSpace(githubUsername) != "" ||
		strings.TrimSpace(email) != "" ||
		strings.TrimSpace(dockerToken) != ""
}

// SupportExpiry returns the end of the support window for a request created
// at the given time.
func SupportExpiry(createdAt time.Time) time.Time {
	return createdAt.AddDate(0, SupportMonths, 0)
}

// SupportActive reports whether the support window is still open at now.
func SupportActive(createdAt, now time.Time) bool {
	return now.Before(SupportExpiry(createdAt))
}
