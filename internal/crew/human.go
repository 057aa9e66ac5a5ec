package crew

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/helmcode/crew-bus/internal/models"
	"github.com/helmcode/crew-bus/internal/protocol"
)

// HumanStateUpdate carries the fields to change. Nil fields are left alone.
type HumanStateUpdate struct {
	BurnoutScore        *int       `json:"burnout_score,omitempty"`
	EnergyLevel         *string    `json:"energy_level,omitempty"`
	CurrentActivity     *string    `json:"current_activity,omitempty"`
	MoodIndicator       *string    `json:"mood_indicator,omitempty"`
	LastSocialActivity  *time.Time `json:"last_social_activity,omitempty"`
	LastFamilyContact   *time.Time `json:"last_family_contact,omitempty"`
	ConsecutiveWorkDays *int       `json:"consecutive_work_days,omitempty"`
}

func (u HumanStateUpdate) validate() error {
	const op = "update_human_state"
	if u.BurnoutScore != nil {
		if err := checkScore(op, "burnout_score", "Burnout", *u.BurnoutScore); err != nil {
			return err
		}
	}
	if u.EnergyLevel != nil && !models.Contains(models.EnergyLevels, *u.EnergyLevel) {
		return invalidf(op, "energy_level", "Invalid energy_level '%s'", *u.EnergyLevel)
	}
	if u.CurrentActivity != nil && !models.Contains(models.Activities, *u.CurrentActivity) {
		return invalidf(op, "current_activity", "Invalid current_activity '%s'", *u.CurrentActivity)
	}
	if u.MoodIndicator != nil && !models.Contains(models.Moods, *u.MoodIndicator) {
		return invalidf(op, "mood_indicator", "Invalid mood_indicator '%s'", *u.MoodIndicator)
	}
	if u.ConsecutiveWorkDays != nil && *u.ConsecutiveWorkDays < 0 {
		return invalidf(op, "consecutive_work_days", "consecutive_work_days must not be negative")
	}
	return nil
}

// GetHumanState returns the human's state, creating the default row on
// first access.
func (s *Service) GetHumanState(ctx context.Context, humanID string) (*models.HumanState, error) {
	const op = "get_human_state"
	var out *models.HumanState
	err := s.transact(ctx, func(tx *gorm.DB, rec *recorder) error {
		human, err := s.loadHuman(tx, op, humanID)
		if err != nil {
			return err
		}
		out, err = ensureHumanState(tx, human, rec.now)
		return err
	})
	return out, err
}

// UpdateHumanState applies the non-nil fields of u. A burnout change is
// mirrored onto the human agent row.
func (s *Service) UpdateHumanState(ctx context.Context, humanID string, u HumanStateUpdate, updatedBy string) (*models.HumanState, error) {
	const op = "update_human_state"
	if err := u.validate(); err != nil {
		return nil, err
	}
	if updatedBy == "" {
		updatedBy = "system"
	}

	var out *models.HumanState
	err := s.transact(ctx, func(tx *gorm.DB, rec *recorder) error {
		human, err := s.loadHuman(tx, op, humanID)
		if err != nil {
			return err
		}
		st, err := ensureHumanState(tx, human, rec.now)
		if err != nil {
			return err
		}

		var fields []string
		if u.BurnoutScore != nil {
			st.BurnoutScore = *u.BurnoutScore
			fields = append(fields, "burnout_score")
		}
		if u.EnergyLevel != nil {
			st.EnergyLevel = *u.EnergyLevel
			fields = append(fields, "energy_level")
		}
		if u.CurrentActivity != nil {
			st.CurrentActivity = *u.CurrentActivity
			fields = append(fields, "current_activity")
		}
		if u.MoodIndicator != nil {
			st.MoodIndicator = *u.MoodIndicator
			fields = append(fields, "mood_indicator")
		}
		if u.LastSocialActivity != nil {
			t := u.LastSocialActivity.UTC()
			st.LastSocialActivity = &t
			fields = append(fields, "last_social_activity")
		}
		if u.LastFamilyContact != nil {
			t := u.LastFamilyContact.UTC()
			st.LastFamilyContact = &t
			fields = append(fields, "last_family_contact")
		}
		if u.ConsecutiveWorkDays != nil {
			st.ConsecutiveWorkDays = *u.ConsecutiveWorkDays
			fields = append(fields, "consecutive_work_days")
		}
		st.UpdatedBy = updatedBy
		st.UpdatedAt = rec.now

		if err := tx.Save(st).Error; err != nil {
			return fmt.Errorf("saving human state: %w", err)
		}
		if u.BurnoutScore != nil {
			if err := updateAgent(tx, rec.now, human.ID, map[string]interface{}{"burnout_score": *u.BurnoutScore}); err != nil {
				return err
			}
		}
		out = st
		return rec.emit(protocol.EventHumanStateUpdated, human.ID, map[string]interface{}{
			"fields":     fields,
			"updated_by": updatedBy,
		})
	})
	return out, err
}

func ensureHumanState(tx *gorm.DB, human *models.Agent, now time.Time) (*models.HumanState, error) {
	var st models.HumanState
	err := tx.Where("human_id = ?", human.ID).First(&st).Error
	if err == nil {
		return &st, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("loading human state: %w", err)
	}

	burnout := human.BurnoutScore
	if burnout < 1 || burnout > 10 {
		burnout = 5
	}
	st = models.HumanState{
		ID:              uuid.New().String(),
		HumanID:         human.ID,
		BurnoutScore:    burnout,
		EnergyLevel:     "medium",
		CurrentActivity: "working",
		MoodIndicator:   "neutral",
		UpdatedBy:       "system",
		UpdatedAt:       now,
	}
	if err := tx.Create(&st).Error; err != nil {
		return nil, fmt.Errorf("creating human state: %w", err)
	}
	return &st, nil
}
