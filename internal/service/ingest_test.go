package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/plantbox/plantbox-api/internal/devices"
	"github.com/plantbox/plantbox-api/internal/docstore"
	"github.com/plantbox/plantbox-api/internal/models"
	"github.com/plantbox/plantbox-api/internal/notify"
	"github.com/plantbox/plantbox-api/internal/repository"
	"github.com/plantbox/plantbox-api/internal/service"
	"go.uber.org/zap/zaptest"
)

// failingStore errors on every call, like an unreachable database
type failingStore struct {
	docstore.Noop
}

var errUnavailable = errors.New("server selection timeout")

func (failingStore) Insert(context.Context, string, docstore.Document) (string, error) {
	return "", errUnavailable
}

func (failingStore) Find(context.Context, string, docstore.Document, ...docstore.FindOption) ([]docstore.Document, error) {
	return nil, errUnavailable
}

func (failingStore) FindOne(context.Context, string, docstore.Document) (docstore.Document, error) {
	return nil, errUnavailable
}

func (failingStore) UpdateOne(context.Context, string, docstore.Document, docstore.Document, bool) (int64, error) {
	return 0, errUnavailable
}

// hungStore blocks every call until its context ends, like a stalled database
type hungStore struct {
	docstore.Noop
}

func (hungStore) Insert(ctx context.Context, _ string, _ docstore.Document) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (hungStore) Find(ctx context.Context, _ string, _ docstore.Document, _ ...docstore.FindOption) ([]docstore.Document, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (hungStore) FindOne(ctx context.Context, _ string, _ docstore.Document) (docstore.Document, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (hungStore) UpdateOne(ctx context.Context, _ string, _, _ docstore.Document, _ bool) (int64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

type hungNotifier struct{}

func (hungNotifier) Send(ctx context.Context, _ notify.Message) error {
	<-ctx.Done()
	return ctx.Err()
}

func (hungNotifier) Enabled() bool { return true }

type recordingNotifier struct {
	mu   sync.Mutex
	err  error
	sent []notify.Message
}

func (r *recordingNotifier) Send(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return r.err
}

func (r *recordingNotifier) Enabled() bool { return true }

type recordingLive struct {
	records       int
	notifications int
}

func (r *recordingLive) PublishTelemetry(models.TelemetryRecord) { r.records++ }

func (r *recordingLive) PublishNotification(models.Notification) { r.notifications++ }

func reading(temp, water, flow float64) models.TelemetryReading {
	return models.TelemetryReading{
		TemperatureC:  models.Float(temp),
		WaterLevelPct: models.Float(water),
		FlowRateLPM:   models.Float(flow),
	}
}

func newService(t *testing.T, store docstore.Store, notifier notify.Notifier) *service.IngestService {
	t.Helper()
	logger := zaptest.NewLogger(t)
	repo := repository.NewRepository(store)
	return service.NewIngestService(service.Deps{
		Repository:   repo,
		Devices:      devices.NewStore(repo, logger),
		State:        devices.NewStateHolder(),
		Notifier:     notifier,
		Logger:       logger,
		StoreTimeout: 200 * time.Millisecond,
	})
}

func TestIngest_ConcreteScenario(t *testing.T) {
	svc := newService(t, nil, nil)
	ctx := context.Background()

	res := svc.Ingest(ctx, "", reading(25, 65, 1))
	if res.Status != service.StatusOK {
		t.Fatalf("Expected status ok, got %s", res.Status)
	}
	if len(res.Alerts) != 1 || res.Alerts[0] != "Temperature drift above 10 percent." {
		t.Errorf("Expected one temperature alert, got %v", res.Alerts)
	}
	if len(res.ProfileAlerts) != 1 || res.ProfileAlerts[0] != "Temperature outside lettuce profile." {
		t.Errorf("Expected lettuce profile alert, got %v", res.ProfileAlerts)
	}

	hist := svc.History(ctx, "", 1)
	if len(hist) != 1 || *hist[0].TemperatureC != 25 {
		t.Fatalf("Expected the ingested record, got %+v", hist)
	}
	if hist[0].Metadata[models.MetadataProfileActive] != "lettuce" {
		t.Errorf("Expected profile_active metadata, got %v", hist[0].Metadata)
	}

	notes := svc.Notifications(1)
	if len(notes) != 1 {
		t.Fatalf("Expected one notification, got %d", len(notes))
	}
	n := notes[0]
	if n.Level != models.LevelWarning {
		t.Errorf("Expected warning, got %s", n.Level)
	}
	if n.Message != "Temperature drift above 10 percent. Temperature outside lettuce profile." {
		t.Errorf("Unexpected message %q", n.Message)
	}
	if n.Telemetry == nil || *n.Telemetry.TemperatureC != 25 {
		t.Error("Expected notification to embed the triggering reading")
	}
}

func TestIngest_NoAlertsNoNotification(t *testing.T) {
	svc := newService(t, nil, nil)

	res := svc.Ingest(context.Background(), "", reading(21, 65, 1))
	if len(res.Alerts) != 0 || len(res.ProfileAlerts) != 0 {
		t.Errorf("Expected no alerts, got %v / %v", res.Alerts, res.ProfileAlerts)
	}
	if res.Alerts == nil || res.ProfileAlerts == nil {
		t.Error("Expected empty, non-nil alert lists")
	}
	if res.Notification != nil {
		t.Error("Expected no notification")
	}
	if len(svc.Notifications(50)) != 0 {
		t.Error("Expected notification buffer to stay empty")
	}
}

func TestIngest_BlackoutIsCritical(t *testing.T) {
	notifier := &recordingNotifier{}
	svc := newService(t, nil, notifier)

	r := reading(21, 65, 1)
	r.BlackoutMode = true
	res := svc.Ingest(context.Background(), "", r)

	if len(res.Alerts) != 1 || res.Alerts[0] != "Blackout mode triggered." {
		t.Errorf("Expected blackout alert, got %v", res.Alerts)
	}
	if res.Notification == nil || res.Notification.Level != models.LevelCritical {
		t.Fatalf("Expected critical notification, got %+v", res.Notification)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].Subject != "Plantbox alert: CRITICAL" {
		t.Errorf("Expected one critical email, got %+v", notifier.sent)
	}
}

func TestIngest_FailingStoreStillIngests(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("smtp: connection refused")}
	svc := newService(t, failingStore{}, notifier)
	ctx := context.Background()

	res := svc.Ingest(ctx, "PlantBox-492", reading(30, 75, 1))
	if res.Status != service.StatusOK {
		t.Fatalf("Expected status ok, got %s", res.Status)
	}
	if len(res.Alerts) == 0 {
		t.Error("Expected alerts against default device targets")
	}

	latest, ok := svc.Latest()
	if !ok || latest.DeviceID != "PlantBox-492" {
		t.Errorf("Expected buffered record for PlantBox-492, got %+v", latest)
	}
	if len(svc.Notifications(10)) != 1 {
		t.Error("Expected notification to be buffered despite failures")
	}
	if len(notifier.sent) != 1 {
		t.Error("Expected exactly one delivery attempt")
	}

	hist := svc.History(ctx, "PlantBox-492", 10)
	if len(hist) != 1 {
		t.Errorf("Expected buffer fallback history of 1, got %d", len(hist))
	}
}

func TestIngest_PerDeviceTargets(t *testing.T) {
	mem := docstore.NewMemory()
	svc := newService(t, mem, nil)
	ctx := context.Background()

	// default air_temp 18-26 midpoint 22; 23 is within 10 percent
	res := svc.Ingest(ctx, "PlantBox-492", reading(23, 75, 1))
	if len(res.Alerts) != 0 {
		t.Errorf("Expected no device alerts, got %v", res.Alerts)
	}

	docs, _ := mem.Find(ctx, docstore.CollectionTelemetry, docstore.Document{"device_id": "PlantBox-492"})
	if len(docs) != 1 {
		t.Errorf("Expected one persisted record, got %d", len(docs))
	}

	dev, _ := mem.FindOne(ctx, docstore.CollectionDevices, docstore.Document{"hardware_id": "PlantBox-492"})
	if dev == nil || dev["last_seen"] == nil {
		t.Error("Expected the device to be touched")
	}
}

func TestHistory_PerDeviceFromStore(t *testing.T) {
	mem := docstore.NewMemory()
	svc := newService(t, mem, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		svc.Ingest(ctx, "A", reading(float64(20+i), 75, 1))
		svc.Ingest(ctx, "B", reading(22, 75, 1))
	}

	hist := svc.History(ctx, "A", 2)
	if len(hist) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(hist))
	}
	for _, rec := range hist {
		if rec.DeviceID != "A" {
			t.Errorf("Expected only device A, got %s", rec.DeviceID)
		}
	}
	if !hist[0].ReceivedAt.Before(hist[1].ReceivedAt) && !hist[0].ReceivedAt.Equal(hist[1].ReceivedAt) {
		t.Error("Expected oldest first")
	}
}

func TestIngest_CapturedAtDefaultsToReceipt(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	svc := service.NewIngestService(service.Deps{
		Logger: zaptest.NewLogger(t),
		Now:    func() time.Time { return now },
	})

	svc.Ingest(context.Background(), "", reading(21, 65, 1))
	rec, _ := svc.Latest()
	if !rec.CapturedAt.Equal(now) || !rec.ReceivedAt.Equal(now) {
		t.Errorf("Expected captured_at and received_at %v, got %v / %v", now, rec.CapturedAt, rec.ReceivedAt)
	}

	captured := now.Add(-time.Hour)
	r := reading(21, 65, 1)
	r.CapturedAt = captured
	svc.Ingest(context.Background(), "", r)
	rec, _ = svc.Latest()
	if !rec.CapturedAt.Equal(captured) {
		t.Errorf("Expected client captured_at to be kept, got %v", rec.CapturedAt)
	}
}

func TestIngest_LiveFeed(t *testing.T) {
	feed := &recordingLive{}
	svc := service.NewIngestService(service.Deps{
		Logger: zaptest.NewLogger(t),
		Live:   feed,
	})

	svc.Ingest(context.Background(), "", reading(21, 65, 1))
	svc.Ingest(context.Background(), "", reading(40, 65, 1))

	if feed.records != 2 || feed.notifications != 1 {
		t.Errorf("Expected 2 records and 1 notification on the feed, got %d / %d", feed.records, feed.notifications)
	}
}

func TestIngest_Concurrent(t *testing.T) {
	svc := newService(t, docstore.NewMemory(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 600; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Ingest(context.Background(), "", reading(30, 65, 1))
		}()
	}
	wg.Wait()

	if got := len(svc.History(context.Background(), "", 1000)); got != 500 {
		t.Errorf("Expected telemetry buffer capped at 500, got %d", got)
	}
	if got := len(svc.Notifications(1000)); got != 200 {
		t.Errorf("Expected notification buffer capped at 200, got %d", got)
	}
	if !strings.Contains(svc.Notifications(1)[0].Message, "Temperature") {
		t.Error("Expected temperature alerts in notifications")
	}
}

func TestIngest_HungStoreAndNotifierAreBounded(t *testing.T) {
	const timeout = 150 * time.Millisecond
	logger := zaptest.NewLogger(t)
	repo := repository.NewRepository(hungStore{})
	svc := service.NewIngestService(service.Deps{
		Repository:    repo,
		Devices:       devices.NewStore(repo, logger),
		Notifier:      hungNotifier{},
		Logger:        logger,
		StoreTimeout:  timeout,
		NotifyTimeout: timeout,
	})

	start := time.Now()
	done := make(chan service.Result, 1)
	go func() {
		done <- svc.Ingest(context.Background(), "PlantBox-492", reading(30, 75, 1))
	}()

	// the record is buffered before the first store call starts waiting
	deadline := time.Now().Add(timeout / 2)
	for {
		if _, ok := svc.Latest(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Expected the reading in the buffer before the store timeout elapsed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	select {
	case <-done:
		t.Fatal("Expected ingest to still be waiting on the store")
	default:
	}

	var res service.Result
	select {
	case res = <-done:
	case <-time.After(20 * timeout):
		t.Fatal("Expected ingest to return once every call timed out")
	}
	// persist, config read, touch, notification persist and delivery
	if elapsed := time.Since(start); elapsed > 10*timeout {
		t.Errorf("Expected ingest bounded by its timeouts, took %v", elapsed)
	}

	if res.Status != service.StatusOK {
		t.Errorf("Expected status ok, got %s", res.Status)
	}
	if len(res.Alerts) == 0 || res.Notification == nil {
		t.Fatalf("Expected alerts against default targets, got %+v", res)
	}
	if got := svc.Notifications(10); len(got) != 1 || got[0].ID != res.Notification.ID {
		t.Errorf("Expected the notification to be buffered, got %+v", got)
	}
}
