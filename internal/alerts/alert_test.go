package alerts

import (
	"testing"
	"time"

	"github.com/bissquit/incident-radar/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		name        string
		alert       Alert
		wantSubject string
		wantBody    []string
	}{
		{
			name: "failing",
			alert: Alert{Kind: KindFailing, Name: "atlassian", Type: domain.ConnectorStatuspage,
				ErrorKind: "timeout", Error: "context deadline exceeded", RetryCount: 5, At: at},
			wantSubject: ":red_circle: atlassian is failing",
			wantBody:    []string{"**atlassian** (statuspage)", "failed 5 consecutive", "(timeout): context deadline exceeded", "2024-03-01 12:30 UTC"},
		},
		{
			name:        "recovered",
			alert:       Alert{Kind: KindRecovered, Name: "gcp", Type: domain.ConnectorGCP, At: at},
			wantSubject: ":large_green_circle: gcp recovered",
			wantBody:    []string{"**gcp** (gcp)", "synced successfully again"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject, body, err := Render(tt.alert)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSubject, subject)
			for _, want := range tt.wantBody {
				assert.Contains(t, body, want)
			}
		})
	}
}

func TestRender_UnknownKind(t *testing.T) {
	_, _, err := Render(Alert{Kind: "bogus"})
	assert.Error(t, err)
}
