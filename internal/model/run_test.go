package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitialStatus(t *testing.T) {
	assert.Equal(t, EmailApproved, InitialStatus(RunRequest{}))
	assert.Equal(t, EmailDrafted, InitialStatus(RunRequest{DryRun: true}))
	assert.Equal(t, EmailPendingApproval, InitialStatus(RunRequest{RequireApproval: true}))
	assert.Equal(t, EmailPendingApproval, InitialStatus(RunRequest{RequireApproval: true, DryRun: true}))
}
