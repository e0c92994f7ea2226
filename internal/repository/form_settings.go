package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/link-guard/internal/domain/model"
)

// FormSettingsRepository — интерфейс для таблицы form_protection_settings.
type FormSettingsRepository interface {
	// Get возвращает настройки формы. Если записи нет — ErrNotFound.
	Get(ctx context.Context, formID int64) (*model.FormSettings, error)
	// Upsert создаёт или обновляет настройки формы и возвращает сохранённую запись.
	Upsert(ctx context.Context, s *model.FormSettings) (*model.FormSettings, error)
	// List возвращает все записи, отсортированные по form_id.
	List(ctx context.Context) ([]model.FormSettings, error)
	// ListBlockedFormIDs возвращает form_id с запретом прямого доступа к загрузкам.
	ListBlockedFormIDs(ctx context.Context) ([]int64, error)
}

// formSettingsRepo — реализация FormSettingsRepository на pgx.
type formSettingsRepo struct {
	db DBTX
}

// NewFormSettingsRepository создаёт репозиторий настроек защиты форм.
func NewFormSettingsRepository(db DBTX) FormSettingsRepository {
	return &formSettingsRepo{db: db}
}

const formSettingsColumns = `form_id, require_login_for_downloads, block_direct_access_to_uploads, updated_at, updated_by`

// Get возвращает настройки формы по form_id.
func (r *formSettingsRepo) Get(ctx context.Context, formID int64) (*model.FormSettings, error) {
	query := `
		SELECT ` + formSettingsColumns + `
		FROM form_protection_settings
		WHERE form_id = $1`

	s, err := scanFormSettings(r.db.QueryRow(ctx, query, formID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения настроек формы %d: %w", formID, err)
	}
	return s, nil
}

// Upsert — INSERT ... ON CONFLICT DO UPDATE с возвратом сохранённой записи.
func (r *formSettingsRepo) Upsert(ctx context.Context, s *model.FormSettings) (*model.FormSettings, error) {
	query := `
		INSERT INTO form_protection_settings
			(form_id, require_login_for_downloads, block_direct_access_to_uploads, updated_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (form_id) DO UPDATE
		SET require_login_for_downloads = EXCLUDED.require_login_for_downloads,
			block_direct_access_to_uploads = EXCLUDED.block_direct_access_to_uploads,
			updated_by = EXCLUDED.updated_by,
			updated_at = NOW()
		RETURNING ` + formSettingsColumns

	saved, err := scanFormSettings(r.db.QueryRow(ctx, query,
		s.FormID, s.RequireLoginForDownloads, s.BlockDirectAccessToUploads, s.UpdatedBy,
	))
	if err != nil {
		return nil, fmt.Errorf("ошибка сохранения настроек формы %d: %w", s.FormID, err)
	}
	return saved, nil
}

// List возвращает все настройки форм.
func (r *formSettingsRepo) List(ctx context.Context) ([]model.FormSettings, error) {
	query := `
		SELECT ` + formSettingsColumns + `
		FROM form_protection_settings
		ORDER BY form_id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка настроек форм: %w", err)
	}
	defer rows.Close()

	var result []model.FormSettings
	for rows.Next() {
		s, err := scanFormSettings(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования настроек формы: %w", err)
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации настроек форм: %w", err)
	}
	return result, nil
}

// ListBlockedFormIDs возвращает form_id по возрастанию.
func (r *formSettingsRepo) ListBlockedFormIDs(ctx context.Context) ([]int64, error) {
	query := `
		SELECT form_id
		FROM form_protection_settings
		WHERE block_direct_access_to_uploads
		ORDER BY form_id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения заблокированных форм: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения заблокированных форм: %w", err)
	}
	return ids, nil
}

// scanFormSettings сканирует строку в model.FormSettings.
func scanFormSettings(row pgx.Row) (*model.FormSettings, error) {
	s := &model.FormSettings{}
	err := row.Scan(
		&s.FormID, &s.RequireLoginForDownloads, &s.BlockDirectAccessToUploads,
		&s.UpdatedAt, &s.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}
