package service

import (
	"context"

	"github.com/martijn/vaultkeeper/internal/core/domain"
	"github.com/martijn/vaultkeeper/internal/core/repository"
	"github.com/sirupsen/logrus"
)

// OperationService keeps the audit log of admin operations
type OperationService struct {
	operationRepo repository.OperationRepository
	log           logrus.FieldLogger
}

func NewOperationService(operationRepo repository.OperationRepository, log logrus.FieldLogger) *OperationService {
	return &OperationService{
		operationRepo: operationRepo,
		log:           log,
	}
}

// Begin records a running operation
func (s *OperationService) Begin(ctx context.Context, command string, operationType domain.OperationType, args map[string]interface{}) (*domain.Operation, error) {
	operation := domain.NewOperation(command, operationType, args)

	if err := s.operationRepo.Create(ctx, operation); err != nil {
		return nil, domain.NewStoreError("failed to record operation", err)
	}

	return operation, nil
}

// Finish marks the operation succeeded or failed depending on opErr.
// It runs detached from ctx so a cancelled request still closes its entry.
func (s *OperationService) Finish(ctx context.Context, operation *domain.Operation, output string, opErr error) {
	if operation == nil {
		return
	}
	if opErr != nil {
		operation.Fail(opErr.Error())
	} else {
		operation.Succeed(output)
	}

	if err := s.operationRepo.Update(context.WithoutCancel(ctx), operation); err != nil {
		s.log.WithError(err).WithField("command_id", operation.CommandID).Error("Failed to update operation")
	}
}

// GetOperation retrieves an operation by ID
func (s *OperationService) GetOperation(ctx context.Context, id int64) (*domain.Operation, error) {
	return s.operationRepo.FindByID(ctx, id)
}

// GetOperationByCommandID retrieves an operation by command ID
func (s *OperationService) GetOperationByCommandID(ctx context.Context, commandID string) (*domain.Operation, error) {
	return s.operationRepo.FindByCommandID(ctx, commandID)
}

// ListOperations lists operations with filtering
func (s *OperationService) ListOperations(ctx context.Context, filter repository.OperationFilter) ([]*domain.Operation, error) {
	operations, err := s.operationRepo.List(ctx, filter)
	if err != nil {
		return nil, domain.NewStoreError("failed to list operations", err)
	}
	return operations, nil
}

// CountOperations counts operations with filtering
func (s *OperationService) CountOperations(ctx context.Context, filter repository.OperationFilter) (int, error) {
	count, err := s.operationRepo.Count(ctx, filter)
	if err != nil {
		return 0, domain.NewStoreError("failed to count operations", err)
	}
	return count, nil
}
