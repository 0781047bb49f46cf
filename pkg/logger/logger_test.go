package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vaultkeeper.log")

	log, err := New("debug", "json", path)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())

	log.WithField("backup_id", "20260101-000000-abcdef12").Info("Backup completed")
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"backup_id":"20260101-000000-abcdef12"`)
	assert.Contains(t, string(data), `"msg":"Backup completed"`)
}

func TestNewRejectsInvalidSettings(t *testing.T) {
	_, err := New("loud", "text", "")
	assert.Error(t, err)

	_, err = New("info", "xml", "")
	assert.Error(t, err)
}

func TestDiscard(t *testing.T) {
	log := Discard()
	log.Info("dropped")
	assert.NoError(t, log.Close())
}
