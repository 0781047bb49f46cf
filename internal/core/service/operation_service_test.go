package service

import (
	"context"
	"errors"
	"testing"

	"github.com/martijn/vaultkeeper/internal/api/util"
	"github.com/martijn/vaultkeeper/internal/core/domain"
	"github.com/martijn/vaultkeeper/internal/core/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationLifecycle(t *testing.T) {
	env := newTestEnv(t, testBackupConfig())
	ctx, cancel := context.WithCancel(context.Background())

	succeeded, err := env.operations.Begin(ctx, "backup full", domain.OperationTypeBackup, map[string]interface{}{"id": "x"})
	require.NoError(t, err)
	failed, err := env.operations.Begin(ctx, "migrate up", domain.OperationTypeMigrate, nil)
	require.NoError(t, err)

	env.operations.Finish(ctx, succeeded, "done", nil)

	// Finishing still works once the request context is gone
	cancel()
	env.operations.Finish(ctx, failed, "", errors.New("boom"))

	got, err := env.operations.GetOperationByCommandID(context.Background(), succeeded.CommandID)
	require.NoError(t, err)
	assert.Equal(t, domain.OperationStatusSuccess, got.Status)
	require.NotNil(t, got.Output)
	assert.Equal(t, "done", *got.Output)
	assert.True(t, got.IsComplete())

	got, err = env.operations.GetOperation(context.Background(), failed.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OperationStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "boom", *got.Error)

	filter := repository.OperationFilter{ListFilter: util.ListFilter{
		Filters: []util.QueryFilter{{Field: "status", Operator: util.OpEq, Value: "failed"}},
	}}
	count, err := env.operations.CountOperations(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = env.operations.GetOperationByCommandID(context.Background(), "missing")
	assert.True(t, domain.IsNotFound(err))
}
