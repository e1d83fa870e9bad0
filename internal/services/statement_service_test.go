package services

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/remix-engine/internal/apperrors"
	"github.com/javajoker/remix-engine/internal/models"
)

func TestStatementExportWritesLocalFile(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	owner := uuid.New()
	tmpl := newRootTemplate(t, e, owner)

	for _, revenue := range []int64{1000, 250} {
		_, _, err := e.Ledger.Append(ctx, &AppendUsageRequest{TemplateID: tmpl.ID, Source: models.UsageSourceAPI, RevenueAmount: revenue})
		require.NoError(t, err)
	}
	require.NoError(t, e.RoyaltyConsumer.Drain(ctx))

	now := time.Now().UTC()
	export, err := e.Statements.Export(ctx, owner, &StatementRequest{From: now.Add(-time.Hour), To: now.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, int64(1250), export.Statement.TotalAmount)
	assert.Len(t, export.Statement.Entries, 2)
	assert.True(t, strings.HasPrefix(export.Object.Key, "statements/"+owner.String()+"/"))

	data, err := os.ReadFile(filepath.Join(e.Config.Statements.LocalDir, filepath.FromSlash(export.Object.Key)))
	require.NoError(t, err)
	var stored RoyaltyStatement
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Equal(t, owner, stored.BeneficiaryID)
	assert.Equal(t, int64(1250), stored.TotalAmount)

	// local exports have no signed link
	assert.Empty(t, export.DownloadURL)
	assert.Nil(t, export.ExpiresAt)
}

func TestStoragePresignedURL(t *testing.T) {
	cfg := testConfig(t)

	local, err := NewStorageService(cfg)
	require.NoError(t, err)
	assert.False(t, local.Remote())
	_, err = local.GeneratePresignedURL("statements/a.json", time.Minute)
	assert.Error(t, err)

	cfg.AWS.AccessKeyID = "AKIDEXAMPLE"
	cfg.AWS.SecretAccessKey = "wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY"
	cfg.AWS.Region = "us-east-1"
	cfg.AWS.S3Bucket = "remix-statements"

	remote, err := NewStorageService(cfg)
	require.NoError(t, err)
	assert.True(t, remote.Remote())

	// signing is local, no request is sent
	url, err := remote.GeneratePresignedURL("statements/owner/20260301_20260401.json", statementLinkTTL)
	require.NoError(t, err)
	assert.Contains(t, url, "remix-statements")
	assert.Contains(t, url, "statements/owner/20260301_20260401.json")
	assert.Contains(t, url, "X-Amz-Expires=900")
	assert.Contains(t, url, "X-Amz-Signature=")
}

func TestStatementRejectsEmptyPeriod(t *testing.T) {
	e := newTestEngine(t)
	now := time.Now()

	_, err := e.Statements.Build(context.Background(), uuid.New(), &StatementRequest{From: now, To: now})
	assert.True(t, apperrors.IsValidation(err))
}

func TestLeaderboardWithoutRedisIsNoop(t *testing.T) {
	board := NewLeaderboardService(nil)
	assert.False(t, board.Enabled())
	assert.NoError(t, board.Publish(context.Background(), []models.TrendingScore{{TemplateID: uuid.New(), DecayedScore: 3}}, time.Minute))

	top, err := board.Top(context.Background(), 10)
	assert.NoError(t, err)
	assert.Empty(t, top)
}

func TestAlertServiceWithoutQueueOnlyLogs(t *testing.T) {
	alerts := NewAlertService(nil)
	assert.NotPanics(t, func() {
		alerts.DeadLetter(&models.DeadLetter{ID: uuid.New(), UsageEventID: uuid.New(), ErrorKind: models.DeadLetterKindNotFound})
	})
}
