package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"fleet-safety-service/internal/model"
)

type RouteRepository struct {
	db *gorm.DB
}

func NewRouteRepository(db *gorm.DB) *RouteRepository {
	return &RouteRepository{db: db}
}

func (r *RouteRepository) CreateBatch(ctx context.Context, candidates []model.RouteCandidate) ([]model.RouteCandidate, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}
	if err := r.db.WithContext(ctx).Create(&candidates).Error; err != nil {
		return nil, err
	}
	return candidates, nil
}

func (r *RouteRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.RouteCandidate, error) {
	var candidate model.RouteCandidate
	err := r.db.WithContext(ctx).
		Preload("Factors").
		First(&candidate, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &candidate, nil
}

func (r *RouteRepository) ListByTrip(ctx context.Context, tripID uuid.UUID, includeSuperseded bool) ([]model.RouteCandidate, error) {
	query := r.db.WithContext(ctx).
		Preload("Factors").
		Where("trip_id = ?", tripID)
	if !includeSuperseded {
		query = query.Where("superseded = FALSE")
	}

	var candidates []model.RouteCandidate
	err := query.Order("created_at").Find(&candidates).Error
	return candidates, err
}

// SupersedeByTrip marks every live candidate of a trip as superseded ahead
// of a fresh candidate set on reroute.
func (r *RouteRepository) SupersedeByTrip(ctx context.Context, tripID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&model.RouteCandidate{}).
		Where("trip_id = ? AND superseded = FALSE", tripID).
		Update("superseded", true).Error
}

// Unsupersede restores a single candidate after a blanket supersede, used
// when a reroute keeps one candidate from a discarded batch.
func (r *RouteRepository) Unsupersede(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&model.RouteCandidate{}).
		Where("id = ?", id).
		Update("superseded", false).Error
}

// SaveScore persists a scoring pass: factor rows plus the composite on the
// candidate. A candidate is immutable after scoring except for supersession,
// so any previous factor rows are replaced wholesale.
func (r *RouteRepository) SaveScore(ctx context.Context, candidateID uuid.UUID, score int, band model.RiskBand, partial bool, factors []model.SafetyFactorResult) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("route_candidate_id = ?", candidateID).
			Delete(&model.SafetyFactorResult{}).Error; err != nil {
			return err
		}
		for i := range factors {
			factors[i].RouteCandidateID = candidateID
		}
		if len(factors) > 0 {
			if err := tx.Create(&factors).Error; err != nil {
				return err
			}
		}
		return tx.Model(&model.RouteCandidate{}).
			Where("id = ?", candidateID).
			Updates(map[string]interface{}{
				"safety_score":    score,
				"risk_band":       band,
				"partial_scoring": partial,
			}).Error
	})
}

func (r *RouteRepository) AvgSelectedScore(ctx context.Context, tripIDs []uuid.UUID) (float64, error) {
	if len(tripIDs) == 0 {
		return 0, nil
	}
	var avg *float64
	err := r.db.WithContext(ctx).
		Model(&model.RouteCandidate{}).
		Select("AVG(safety_score)").
		Where("trip_id IN ? AND safety_score IS NOT NULL AND superseded = FALSE", tripIDs).
		Scan(&avg).Error
	if err != nil || avg == nil {
		return 0, err
	}
	return *avg, nil
}
