package storage_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"token-vetting/internal/observability"
	"token-vetting/internal/storage"
	"token-vetting/internal/storage/memory"
	"token-vetting/internal/storage/storagetest"
)

func TestInstrumented(t *testing.T) {
	storagetest.Run(t, func(_ *testing.T, historyLimit int) storage.VettingStore {
		return storage.Instrument("memory_test", memory.NewVettingStore(historyLimit))
	})
}

func TestInstrumented_NotFoundIsNotAnError(t *testing.T) {
	s := storage.Instrument("memory_notfound", memory.NewVettingStore(1))
	errs := observability.DefaultMetrics.StoreOpErrors.WithLabelValues("memory_notfound", "get_latest")

	_, err := s.GetLatest(context.Background(), storagetest.TokenA)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, 0.0, testutil.ToFloat64(errs))

	_ = s.Save(context.Background(), storagetest.TokenA, nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(observability.DefaultMetrics.StoreOpErrors.WithLabelValues("memory_notfound", "save")))
}
