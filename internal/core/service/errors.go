package service

import (
	"errors"

	"github.com/martijn/vaultkeeper/internal/core/domain"
)

// wrapStore passes typed errors through and wraps anything else as a store error
func wrapStore(message string, err error) error {
	var e *domain.Error
	if errors.As(err, &e) {
		return err
	}
	return domain.NewStoreError(message, err)
}

// invalidArtifact reports an artifact that cannot be trusted for a restore
func invalidArtifact(message string, err error) error {
	return &domain.Error{
		Kind:    domain.KindValidation,
		Message: message,
		Fields:  map[string]string{"backupId": message},
		Err:     err,
	}
}
