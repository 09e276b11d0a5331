// internal/tasks/feed_refresh_task.go
package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/partner-catalog/internal/apperr"
	"github.com/javajoker/partner-catalog/internal/models"
	"github.com/javajoker/partner-catalog/internal/services"
)

// FeedUpdater is the part of the partner pipeline the refresh needs.
type FeedUpdater interface {
	UpdateFromURL(ctx context.Context, principal services.Principal, url string, trigger models.ImportTrigger) (*services.IngestResult, error)
	ShopsWithFeeds(ctx context.Context) ([]models.Shop, error)
}

type Notifier interface {
	SendImportFailedNotification(user *models.User, imp *models.FeedImport) error
}

// FeedRefreshTask re-ingests every shop's last submitted feed on a schedule,
// as the shop's owner.
type FeedRefreshTask struct {
	updater  FeedUpdater
	notifier Notifier
	cron     *cron.Cron
	spec     string

	concurrencyLimit int
	runTimeout       time.Duration
}

type RefreshSummary struct {
	Succeeded int
	Failed    int
	Skipped   int
}

// NewFeedRefreshTask takes a six-field cron spec (seconds first).
func NewFeedRefreshTask(updater FeedUpdater, notifier Notifier, spec string) *FeedRefreshTask {
	logger := cron.PrintfLogger(logrus.StandardLogger())
	return &FeedRefreshTask{
		updater:  updater,
		notifier: notifier,
		spec:     spec,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(logger)),
		),
		concurrencyLimit: 4,
		runTimeout:       30 * time.Minute,
	}
}

func (t *FeedRefreshTask) SetConcurrency(limit int) {
	if limit > 0 {
		t.concurrencyLimit = limit
	}
}

func (t *FeedRefreshTask) Start() error {
	_, err := t.cron.AddFunc(t.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.runTimeout)
		defer cancel()
		t.Run(ctx)
	})
	if err != nil {
		return err
	}

	t.cron.Start()
	logrus.WithField("schedule", t.spec).Info("Feed refresh task started")
	return nil
}

func (t *FeedRefreshTask) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
	logrus.Info("Feed refresh task stopped")
}

// Run refreshes all shops once. A failing shop never stops the others.
func (t *FeedRefreshTask) Run(ctx context.Context) RefreshSummary {
	var summary RefreshSummary

	shops, err := t.updater.ShopsWithFeeds(ctx)
	if err != nil {
		logrus.WithError(err).Error("Feed refresh: failed to list shops")
		return summary
	}
	if len(shops) == 0 {
		return summary
	}

	sem := make(chan struct{}, t.concurrencyLimit)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for i := range shops {
		shop := shops[i]
		if shop.User == nil || shop.User.Status != models.UserStatusActive {
			summary.Skipped++
			continue
		}

		select {
		case <-ctx.Done():
			logrus.Warn("Feed refresh: run timed out")
			wg.Wait()
			return summary
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(shop models.Shop) {
			defer wg.Done()
			defer func() { <-sem }()

			ok := t.refresh(ctx, &shop)

			mu.Lock()
			defer mu.Unlock()
			if ok {
				summary.Succeeded++
			} else {
				summary.Failed++
			}
		}(shop)
	}

	wg.Wait()
	logrus.WithFields(logrus.Fields{
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"skipped":   summary.Skipped,
	}).Info("Feed refresh finished")
	return summary
}

func (t *FeedRefreshTask) refresh(ctx context.Context, shop *models.Shop) bool {
	principal := services.Principal{UserID: shop.UserID, Role: shop.User.UserType}
	started := time.Now()

	_, err := t.updater.UpdateFromURL(ctx, principal, shop.URL, models.ImportTriggerSchedule)
	if err == nil {
		return true
	}

	appErr := apperr.As(err)
	imp := &models.FeedImport{
		UserID:       shop.UserID,
		ShopID:       &shop.ID,
		URL:          shop.URL,
		Trigger:      models.ImportTriggerSchedule,
		Status:       models.ImportStatusFailed,
		ErrorCode:    string(appErr.Kind),
		ErrorMessage: appErr.Error(),
		StartedAt:    started,
		FinishedAt:   time.Now(),
	}
	if err := t.notifier.SendImportFailedNotification(shop.User, imp); err != nil {
		logrus.WithError(err).WithField("shop_id", shop.ID).Warn("Feed refresh: failed to notify owner")
	}
	return false
}
