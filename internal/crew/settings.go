package crew

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/helmcode/crew-bus/internal/models"
	"github.com/helmcode/crew-bus/internal/protocol"
)

// SetConfig stores a crew-level setting, replacing any previous value.
func (s *Service) SetConfig(ctx context.Context, key, value string) (*models.Settings, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, invalidf("set_config", "key", "Config key is required")
	}

	row := models.Settings{Key: key, Value: value}
	err := s.transact(ctx, func(tx *gorm.DB, rec *recorder) error {
		row.UpdatedAt = rec.now
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("saving config %s: %w", key, err)
		}
		return rec.emit(protocol.EventConfigUpdated, "", map[string]interface{}{"key": key})
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// GetConfig returns the value for key, or def when it is unset.
func (s *Service) GetConfig(ctx context.Context, key, def string) (string, error) {
	var row models.Settings
	err := s.read(ctx).Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return def, nil
	}
	if err != nil {
		return "", fmt.Errorf("loading config %s: %w", key, err)
	}
	return row.Value, nil
}

// ListConfig returns every setting ordered by key.
func (s *Service) ListConfig(ctx context.Context) ([]models.Settings, error) {
	var rows []models.Settings
	if err := s.read(ctx).Order("key ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing config: %w", err)
	}
	return rows, nil
}

// DeleteConfig removes a setting.
func (s *Service) DeleteConfig(ctx context.Context, key string) error {
	return s.transact(ctx, func(tx *gorm.DB, rec *recorder) error {
		res := tx.Where("key = ?", key).Delete(&models.Settings{})
		if res.Error != nil {
			return fmt.Errorf("deleting config %s: %w", key, res.Error)
		}
		if res.RowsAffected == 0 {
			return notFoundf("delete_config", "key", "Config key '%s' not found", key)
		}
		return rec.emit(protocol.EventConfigDeleted, "", map[string]interface{}{"key": key})
	})
}
