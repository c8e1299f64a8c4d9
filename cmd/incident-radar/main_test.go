package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/bissquit/incident-radar/internal/auth"
	"github.com/bissquit/incident-radar/internal/connectors"
	"github.com/bissquit/incident-radar/internal/domain"
	"github.com/bissquit/incident-radar/internal/syncer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "incident-radar "))
}

func TestTokenCommand_IssuesVerifiableToken(t *testing.T) {
	t.Setenv("RADAR_DATABASE__DRIVER", "memory")
	t.Setenv("RADAR_JWT__SECRET_KEY", "cli-test-secret")

	out, err := execute(t, "token", "--subject", "alice", "--role", "viewer", "--ttl", "1m")
	require.NoError(t, err)

	authenticator, err := auth.NewAuthenticator(auth.Config{SecretKey: "cli-test-secret", Issuer: "incident-radar"})
	require.NoError(t, err)
	subject, role, err := authenticator.ValidateToken(t.Context(), strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "alice", subject)
	assert.Equal(t, domain.RoleViewer, role)
}

func TestTokenCommand_RejectsUnknownRole(t *testing.T) {
	t.Setenv("RADAR_DATABASE__DRIVER", "memory")
	t.Setenv("RADAR_JWT__SECRET_KEY", "cli-test-secret")

	_, err := execute(t, "token", "--role", "root")
	assert.ErrorIs(t, err, auth.ErrInvalidRole)
}

func TestMigrateDown_RequiresConfirmation(t *testing.T) {
	_, err := execute(t, "migrate", "down")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
}

func TestMigrate_RequiresPostgresDriver(t *testing.T) {
	t.Setenv("RADAR_DATABASE__DRIVER", "memory")
	t.Setenv("RADAR_JWT__SECRET_KEY", "cli-test-secret")

	_, err := execute(t, "migrate", "up")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres driver")
}

func TestPrintRunResult(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	result := &syncer.RunResult{
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Succeeded:  1,
		Failed:     1,
		Sources: []syncer.SourceResult{
			{Name: "atlassian", Type: domain.ConnectorStatuspage, Success: true, Incidents: 3, Components: 7},
			{Name: "legacy", Type: "pagerduty", ErrorKind: connectors.KindConfiguration,
				Error: "unknown connector type", RetryCount: 2},
		},
	}

	var out bytes.Buffer
	printRunResult(&out, result)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[1], "atlassian")
	assert.Contains(t, lines[1], "ok")
	assert.Contains(t, lines[2], "configuration")
	assert.Contains(t, lines[2], "unknown connector type")
	assert.Equal(t, "1 succeeded, 1 failed in 1.5s", lines[4])
}
