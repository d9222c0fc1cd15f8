package devices_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/plantbox/plantbox-api/internal/devices"
	"github.com/plantbox/plantbox-api/internal/docstore"
	"github.com/plantbox/plantbox-api/internal/models"
	"github.com/plantbox/plantbox-api/internal/repository"
	"go.uber.org/zap/zaptest"
)

type failingRepo struct{}

func (failingRepo) Enabled() bool { return true }

func (failingRepo) FindDevice(context.Context, string) (models.DeviceConfig, error) {
	return models.DeviceConfig{}, errors.New("connection refused")
}

func (failingRepo) UpsertDevice(context.Context, models.DeviceConfig) error {
	return errors.New("connection refused")
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestIsOnline(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	threeMin := now.Add(-3 * time.Minute)
	if devices.IsOnline(&threeMin, now) {
		t.Error("Expected device seen 3 minutes ago to be offline")
	}

	oneMin := now.Add(-1 * time.Minute)
	if !devices.IsOnline(&oneMin, now) {
		t.Error("Expected device seen 1 minute ago to be online")
	}

	if devices.IsOnline(nil, now) {
		t.Error("Expected never-seen device to be offline")
	}
}

func TestGetOrCreate_DefaultsNotPersisted(t *testing.T) {
	mem := docstore.NewMemory()
	store := devices.NewStore(repository.NewRepository(mem), zaptest.NewLogger(t))
	ctx := context.Background()

	cfg := store.GetOrCreate(ctx, "PlantBox-492")
	if cfg.DisplayName != "PlantBox-492" || cfg.OwnerID != devices.DefaultOwner {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
	if cfg.Targets[models.TargetFlowRate].Min != 0.8 || cfg.Targets[models.TargetFlowRate].Max != 1.2 {
		t.Errorf("Unexpected flow_rate default: %+v", cfg.Targets[models.TargetFlowRate])
	}
	if cfg.IsOnline {
		t.Error("Expected unseen device to be offline")
	}

	docs, _ := mem.Find(ctx, docstore.CollectionDevices, docstore.Document{})
	if len(docs) != 0 {
		t.Errorf("Expected no persisted devices, got %d", len(docs))
	}
}

func TestGetOrCreate_StoreFailureFallsBack(t *testing.T) {
	store := devices.NewStore(failingRepo{}, zaptest.NewLogger(t))

	cfg := store.GetOrCreate(context.Background(), "PlantBox-7")
	if cfg.HardwareID != "PlantBox-7" {
		t.Errorf("Expected default config for PlantBox-7, got %s", cfg.HardwareID)
	}
}

func TestUpdate_PersistsAndComputesOnline(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store := devices.NewStore(repository.NewRepository(docstore.NewMemory()), zaptest.NewLogger(t),
		devices.WithClock(fixedClock(now)))
	ctx := context.Background()

	if err := store.Touch(ctx, "PlantBox-492", now.Add(-time.Minute)); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}

	updated, err := store.Update(ctx, "PlantBox-492", func(cfg *models.DeviceConfig) error {
		cfg.DisplayName = "Kitchen"
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !updated.UpdatedAt.Equal(now) {
		t.Errorf("Expected updated_at %v, got %v", now, updated.UpdatedAt)
	}

	cfg := store.GetOrCreate(ctx, "PlantBox-492")
	if cfg.DisplayName != "Kitchen" {
		t.Errorf("Expected display name Kitchen, got %s", cfg.DisplayName)
	}
	if !cfg.IsOnline {
		t.Error("Expected device touched a minute ago to be online")
	}
}

func TestUpdate_FnErrorAborts(t *testing.T) {
	mem := docstore.NewMemory()
	store := devices.NewStore(repository.NewRepository(mem), zaptest.NewLogger(t))
	boom := errors.New("boom")

	_, err := store.Update(context.Background(), "PlantBox-1", func(*models.DeviceConfig) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected fn error, got %v", err)
	}

	docs, _ := mem.Find(context.Background(), docstore.CollectionDevices, docstore.Document{})
	if len(docs) != 0 {
		t.Errorf("Expected nothing saved, got %d documents", len(docs))
	}
}

func TestUpdate_ReadFailureDoesNotOverwrite(t *testing.T) {
	store := devices.NewStore(failingRepo{}, zaptest.NewLogger(t))

	called := false
	_, err := store.Update(context.Background(), "PlantBox-1", func(*models.DeviceConfig) error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("Expected read failure to surface")
	}
	if called {
		t.Error("Expected fn not to run after a failed read")
	}
}

func TestUpdate_ConcurrentSameDevice(t *testing.T) {
	store := devices.NewStore(repository.NewRepository(docstore.NewMemory()), zaptest.NewLogger(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Update(ctx, "PlantBox-1", func(cfg *models.DeviceConfig) error {
				r := cfg.Targets[models.TargetAirTemp]
				r.Max++
				cfg.Targets[models.TargetAirTemp] = r
				return nil
			})
		}()
	}
	wg.Wait()

	cfg := store.GetOrCreate(ctx, "PlantBox-1")
	if got := cfg.Targets[models.TargetAirTemp].Max; got != 46 {
		t.Errorf("Expected 20 serialized increments (max 46), got %v", got)
	}
}

func TestSave_NoStoreIsSilent(t *testing.T) {
	store := devices.NewStore(nil, zaptest.NewLogger(t))

	if err := store.Save(context.Background(), devices.DefaultDeviceConfig("PlantBox-1")); err != nil {
		t.Errorf("Expected silent no-op, got %v", err)
	}
	if err := store.Touch(context.Background(), "PlantBox-1", time.Now()); err != nil {
		t.Errorf("Expected silent no-op touch, got %v", err)
	}
}

func TestStateHolder(t *testing.T) {
	h := devices.NewStateHolder()

	got := h.Get()
	if got.TargetTemperatureC != 21 || got.NutrientSchedule.DoseML != 15 || got.ActiveProfile != "lettuce" {
		t.Errorf("Unexpected default state: %+v", got)
	}

	next := got
	next.TargetTemperatureC = 25
	h.Replace(next)

	if h.Get().TargetTemperatureC != 25 {
		t.Errorf("Expected replaced temperature 25, got %v", h.Get().TargetTemperatureC)
	}
}
