// Package scheduler содержит периодические фоновые задачи.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/homemaster-backend/internal/goroutine"
	"github.com/ignatzorin/homemaster-backend/internal/logger"
	"github.com/ignatzorin/homemaster-backend/internal/models"
)

// Settlement описывает контракт сервиса расчётов, нужный свипу.
type Settlement interface {
	ListDue(ctx context.Context) ([]models.EscrowTransaction, error)
	Payout(ctx context.Context, id uuid.UUID, allowRetry bool) (*models.EscrowTransaction, error)
}

// PayoutSweeper ежедневный свип выплат: выбирает строки леджера с
// истёкшим сроком удержания и выплачивает их по одной. Ошибка одной
// строки не прерывает обработку остальных, перекрывающиеся запуски
// пропускаются.
type PayoutSweeper struct {
	settlement Settlement
	runAt      string // HH:MM

	running sync.Mutex
}

// NewPayoutSweeper создаёт свип с запуском в runAt (локальное время).
func NewPayoutSweeper(settlement Settlement, runAt string) *PayoutSweeper {
	return &PayoutSweeper{settlement: settlement, runAt: runAt}
}

// Start запускает ежедневный цикл до отмены контекста.
func (s *PayoutSweeper) Start(ctx context.Context) {
	goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
		for {
			wait := time.Until(s.nextRun(time.Now()))
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
				s.RunOnce(ctx)
			}
		}
	})
}

// RunOnce выполняет один проход свипа. Повторный вход во время работы —
// no-op (skip-if-running): предикат выборки и так идемпотентен, но
// параллельная обработка одной строки не должна быть возможна даже
// структурно.
func (s *PayoutSweeper) RunOnce(ctx context.Context) SweepReport {
	if !s.running.TryLock() {
		if logger.Log != nil {
			logger.Log.Warn("Payout sweep already running, skipping")
		}
		return SweepReport{Skipped: true}
	}
	defer s.running.Unlock()

	report := SweepReport{}
	due, err := s.settlement.ListDue(ctx)
	if err != nil {
		if logger.Log != nil {
			logger.Log.WithError(err).Error("Payout sweep: failed to list due rows")
		}
		report.ListError = err
		return report
	}
	report.Eligible = len(due)

	for _, t := range due {
		if ctx.Err() != nil {
			break
		}
		report.Attempted++
		// Таймаут на строку выставляет сервис расчётов: зависший вызов
		// шлюза не останавливает переход к следующей строке.
		if _, err := s.settlement.Payout(ctx, t.ID, false); err != nil {
			report.Failed++
			if logger.Log != nil {
				logger.Log.WithError(err).WithField("transaction_id", t.ID).
					Warn("Payout sweep: row payout failed")
			}
		}
	}

	if logger.Log != nil {
		logger.Log.WithFields(logrus.Fields{
			"eligible":  report.Eligible,
			"attempted": report.Attempted,
			"failed":    report.Failed,
		}).Info("Payout sweep finished")
	}
	return report
}

// SweepReport итоги одного прохода свипа.
type SweepReport struct {
	Eligible  int
	Attempted int
	Failed    int
	Skipped   bool
	ListError error
}

// nextRun возвращает ближайший момент запуска: сегодня в runAt, либо
// завтра, если время уже прошло.
func (s *PayoutSweeper) nextRun(now time.Time) time.Time {
	at, err := time.Parse("15:04", s.runAt)
	if err != nil {
		// runAt валидируется при загрузке конфигурации.
		return now.Add(24 * time.Hour)
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
