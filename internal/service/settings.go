// Пакет service — бизнес-логика Link Guard.
// FormSettingsService — настройки защиты форм с LRU-кэшем (hashicorp/golang-lru/v2/expirable).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/link-guard/internal/domain/model"
	"github.com/bigkaa/goartstore/link-guard/internal/repository"
)

// ErrInvalidFormID — form_id должен быть положительным.
var ErrInvalidFormID = errors.New("некорректный form_id")

// Prometheus-метрики кэша настроек.
var (
	settingsCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lg_settings_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш настроек форм.",
	})
	settingsCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lg_settings_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша настроек форм.",
	})
)

// FormSettingsService — чтение и изменение настроек защиты форм.
// Resolve обслуживает горячий путь (каждая выдача и проверка ссылки) и кэшируется;
// Get/List/Update — административные операции без кэша.
type FormSettingsService struct {
	repo  repository.FormSettingsRepository
	cache *expirable.LRU[int64, *model.FormSettings]

	// generation растёт при каждом Update; Resolve не кладёт в кэш
	// прочитанное до Update значение.
	mu         sync.Mutex
	generation uint64
	logger     *slog.Logger
}

// NewFormSettingsService создаёт сервис настроек с кэшем на cacheSize записей и TTL.
func NewFormSettingsService(
	repo repository.FormSettingsRepository,
	cacheSize int,
	cacheTTL time.Duration,
	logger *slog.Logger,
) *FormSettingsService {
	return &FormSettingsService{
		repo:   repo,
		cache:  expirable.NewLRU[int64, *model.FormSettings](cacheSize, nil, cacheTTL),
		logger: logger.With(slog.String("component", "form_settings")),
	}
}

// Resolve возвращает действующие настройки формы.
// Форма без записи получает настройки по умолчанию (защита выключена);
// такой результат тоже кэшируется.
func (s *FormSettingsService) Resolve(ctx context.Context, formID int64) (*model.FormSettings, error) {
	if formID <= 0 {
		return nil, ErrInvalidFormID
	}

	if cached, ok := s.cache.Get(formID); ok {
		settingsCacheHitsTotal.Inc()
		return cached, nil
	}
	settingsCacheMissesTotal.Inc()

	gen := s.currentGeneration()
	settings, err := s.repo.Get(ctx, formID)
	if errors.Is(err, repository.ErrNotFound) {
		settings = model.DefaultFormSettings(formID)
	} else if err != nil {
		return nil, fmt.Errorf("настройки формы %d: %w", formID, err)
	}

	s.mu.Lock()
	if s.generation == gen {
		s.cache.Add(formID, settings)
	}
	s.mu.Unlock()
	return settings, nil
}

func (s *FormSettingsService) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Get возвращает сохранённые настройки формы или repository.ErrNotFound.
func (s *FormSettingsService) Get(ctx context.Context, formID int64) (*model.FormSettings, error) {
	if formID <= 0 {
		return nil, ErrInvalidFormID
	}
	return s.repo.Get(ctx, formID)
}

// List возвращает все сохранённые настройки, отсортированные по form_id.
func (s *FormSettingsService) List(ctx context.Context) ([]model.FormSettings, error) {
	return s.repo.List(ctx)
}

// Update сохраняет настройки формы и сбрасывает её запись в кэше.
func (s *FormSettingsService) Update(
	ctx context.Context,
	formID int64,
	requireLogin, blockDirectAccess bool,
	updatedBy string,
) (*model.FormSettings, error) {
	if formID <= 0 {
		return nil, ErrInvalidFormID
	}

	saved, err := s.repo.Upsert(ctx, &model.FormSettings{
		FormID:                     formID,
		RequireLoginForDownloads:   requireLogin,
		BlockDirectAccessToUploads: blockDirectAccess,
		UpdatedBy:                  updatedBy,
	})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.generation++
	s.cache.Remove(formID)
	s.mu.Unlock()

	s.logger.Info("Настройки формы обновлены",
		slog.Int64("form_id", formID),
		slog.Bool("require_login_for_downloads", requireLogin),
		slog.Bool("block_direct_access_to_uploads", blockDirectAccess),
		slog.String("updated_by", updatedBy),
	)
	return saved, nil
}

// BlockedFormIDs возвращает формы с запретом прямого доступа к загрузкам.
func (s *FormSettingsService) BlockedFormIDs(ctx context.Context) ([]int64, error) {
	return s.repo.ListBlockedFormIDs(ctx)
}
