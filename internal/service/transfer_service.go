package service

import (
	"context"
	"fmt"

	"github.com/digkill/TGRenameBot/internal/models"
)

const defaultHistoryLimit = 20

type TransferStore interface {
	Create(ctx context.Context, log *models.TransferLog) error
	ListByUser(ctx context.Context, userID int64, limit int) ([]models.TransferLog, error)
}

type TransferService struct {
	repo TransferStore
}

func NewTransferService(repo TransferStore) *TransferService {
	return &TransferService{repo: repo}
}

func (s *TransferService) Record(ctx context.Context, log *models.TransferLog) error {
	if err := s.repo.Create(ctx, log); err != nil {
		return fmt.Errorf("record transfer: %w", err)
	}
	return nil
}

func (s *TransferService) History(ctx context.Context, userID int64, limit int) ([]models.TransferLog, error) {
	if limit <= 0 || limit > 100 {
		limit = defaultHistoryLimit
	}
	return s.repo.ListByUser(ctx, userID, limit)
}
