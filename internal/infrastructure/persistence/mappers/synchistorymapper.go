package mappers

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/orris-inc/entitlementsync/internal/application/entitlement/services"
	"github.com/orris-inc/entitlementsync/internal/infrastructure/persistence/models"
)

const maxErrorMessageLength = 1000

// syncResultMetadata is the ledger record stored alongside a successful attempt.
type syncResultMetadata struct {
	PlanName      string `json:"plan_name,omitempty"`
	ExpiresAt     *int64 `json:"expires_at,omitempty"`
	WillRenew     bool   `json:"will_renew"`
	SeatCount     int    `json:"seat_count,omitempty"`
	CanCreateTeam bool   `json:"can_create_team,omitempty"`
}

// SyncHistoryMapper converts sync attempts to persistence models.
type SyncHistoryMapper interface {
	ToModel(attempt services.SyncAttempt) (*models.SyncHistoryModel, error)
}

type syncHistoryMapper struct{}

func NewSyncHistoryMapper() SyncHistoryMapper {
	return &syncHistoryMapper{}
}

func (m *syncHistoryMapper) ToModel(attempt services.SyncAttempt) (*models.SyncHistoryModel, error) {
	model := &models.SyncHistoryModel{
		Operation:           attempt.Operation,
		Trigger:             string(attempt.Trigger),
		ProductID:           attempt.ProductID,
		TransactionID:       attempt.TransactionID,
		ProposedStatus:      attempt.Status.Kind.String(),
		WillRenew:           attempt.Status.WillRenew,
		RenewalUndetermined: attempt.Status.RenewalUndetermined,
		Success:             attempt.Err == nil,
		DurationMs:          attempt.Duration.Milliseconds(),
		AttemptedAt:         attempt.AttemptedAt.UTC(),
	}

	if attempt.Err != nil {
		msg := attempt.Err.Error()
		if len(msg) > maxErrorMessageLength {
			msg = msg[:maxErrorMessageLength]
		}
		model.ErrorMessage = &msg
	}

	if attempt.Result != nil {
		status := attempt.Result.Status
		model.ResultStatus = &status

		meta := syncResultMetadata{
			PlanName:      attempt.Result.PlanName,
			WillRenew:     attempt.Result.WillRenew,
			SeatCount:     attempt.Result.SeatCount,
			CanCreateTeam: attempt.Result.CanCreateTeam,
		}
		if attempt.Result.ExpiresAt != nil {
			ts := attempt.Result.ExpiresAt.Unix()
			meta.ExpiresAt = &ts
		}
		data, err := json.Marshal(meta)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal sync result metadata: %w", err)
		}
		model.Metadata = datatypes.JSON(data)
	}

	return model, nil
}
