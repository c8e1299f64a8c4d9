package datasources

import (
	"context"
	"testing"
	"time"

	"github.com/bissquit/incident-radar/internal/domain"
	"github.com/bissquit/incident-radar/internal/store"
	"github.com/bissquit/incident-radar/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_CreateAndUpdate(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.New())

	ds, err := svc.Create(ctx, CreateInput{Name: "github", Type: domain.ConnectorStatuspage, BaseURL: "https://www.githubstatus.com", IsActive: true})
	require.NoError(t, err)
	assert.NotEmpty(t, ds.ID)

	_, err = svc.Create(ctx, CreateInput{Name: "github", Type: domain.ConnectorCachet, BaseURL: "https://x"})
	assert.ErrorIs(t, err, store.ErrDataSourceExists)

	inactive := false
	updated, err := svc.Update(ctx, ds.ID, UpdateInput{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.Equal(t, "github", updated.Name)
	assert.Equal(t, domain.ConnectorStatuspage, updated.Type)

	_, err = svc.Update(ctx, "missing", UpdateInput{IsActive: &inactive})
	assert.ErrorIs(t, err, store.ErrDataSourceNotFound)
}

func TestService_EnsureConfiguredKeepsSyncState(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	svc := NewService(repo)

	configured := []domain.DataSource{
		{Name: "gcp", Type: domain.ConnectorGCP, BaseURL: "https://status.cloud.google.com", IsActive: true},
		{Name: "legacy", Type: "pingdom", BaseURL: "https://legacy.example.com", IsActive: true},
	}
	require.NoError(t, svc.EnsureConfigured(ctx, configured))

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	var gcpID string
	for _, ds := range list {
		if ds.Name == "gcp" {
			gcpID = ds.ID
		}
	}
	_, err = repo.RecordSyncOutcome(ctx, gcpID, time.Now(), &store.SyncFailure{Message: "boom", Kind: "network"})
	require.NoError(t, err)

	configured[0].BaseURL = "https://status.cloud.google.com/"
	configured[0].IsActive = false
	require.NoError(t, svc.EnsureConfigured(ctx, configured))

	got, err := svc.Get(ctx, gcpID)
	require.NoError(t, err)
	assert.Equal(t, "https://status.cloud.google.com/", got.BaseURL)
	assert.False(t, got.IsActive)
	assert.Equal(t, 1, got.RetryCount)

	list, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestService_OnChangeFiresAfterWrites(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.New())

	changes := 0
	svc.OnChange(func(context.Context) { changes++ })

	ds, err := svc.Create(ctx, CreateInput{Name: "github", Type: domain.ConnectorStatuspage, BaseURL: "https://www.githubstatus.com", IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, 1, changes)

	_, err = svc.Create(ctx, CreateInput{Name: "github", Type: domain.ConnectorStatuspage, BaseURL: "https://x"})
	require.Error(t, err)
	assert.Equal(t, 1, changes)

	inactive := false
	_, err = svc.Update(ctx, ds.ID, UpdateInput{IsActive: &inactive})
	require.NoError(t, err)
	assert.Equal(t, 2, changes)

	_, err = svc.Update(ctx, "missing", UpdateInput{IsActive: &inactive})
	require.Error(t, err)
	assert.Equal(t, 2, changes)

	require.NoError(t, svc.EnsureConfigured(ctx, []domain.DataSource{
		{Name: "gcp", Type: domain.ConnectorGCP, BaseURL: "https://status.cloud.google.com", IsActive: true},
	}))
	assert.Equal(t, 3, changes)
}
