package sqlstore

import (
	"context"

	"gorm.io/gorm"
)

// LoadSettings returns every stored option.
func (s *Store) LoadSettings(ctx context.Context) (map[string]string, error) {
	var rows []settingRow
	if err := s.withContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	values := make(map[string]string, len(rows))
	for _, r := range rows {
		values[r.Name] = r.Value
	}
	return values, nil
}

// SaveSettings replaces the stored options with values.
func (s *Store) SaveSettings(ctx context.Context, values map[string]string) error {
	return s.withContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&settingRow{}).Error; err != nil {
			return err
		}
		if len(values) == 0 {
			return nil
		}
		rows := make([]settingRow, 0, len(values))
		for k, v := range values {
			rows = append(rows, settingRow{Name: k, Value: v})
		}
		return tx.Create(&rows).Error
	})
}
