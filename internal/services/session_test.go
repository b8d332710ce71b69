package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"driver-nav-service/internal/adapters/location"
	"driver-nav-service/internal/adapters/routing"
	"driver-nav-service/internal/domain"
	"driver-nav-service/internal/navigation"
	"driver-nav-service/internal/platform/clock"
	"driver-nav-service/internal/ports"
)

var (
	store    = domain.LatLng{Lat: 33.4500, Lng: -112.0700}
	customer = domain.LatLng{Lat: 33.4600, Lng: -112.0700}
	start    = domain.LatLng{Lat: 33.4400, Lng: -112.0700}
)

func offeredTask() *domain.Task {
	return &domain.Task{
		ID:       "task_1",
		OrderID:  "ord_1",
		Status:   domain.TaskOffered,
		Pickup:   &domain.Waypoint{Lat: store.Lat, Lng: store.Lng, Name: "Store"},
		Delivery: &domain.Waypoint{Lat: customer.Lat, Lng: customer.Lng},
	}
}

// fakeAPI records calls as "action id" strings.
type fakeAPI struct {
	mu      sync.Mutex
	calls   []string
	offers  []*domain.Task
	updates []ports.DriverUpdate
	idCheck ports.IDCheckResult
	failOn  string

	// hold parks the named action after recording it: held is closed once
	// the call arrives, and the call returns when release is closed.
	hold    string
	held    chan struct{}
	release chan struct{}
}

func (f *fakeAPI) record(action, id string) error {
	f.mu.Lock()
	f.calls = append(f.calls, action+" "+id)
	fail := action == f.failOn
	park := action == f.hold
	f.mu.Unlock()

	if park {
		close(f.held)
		<-f.release
	}
	if fail {
		return errors.New("backend unavailable")
	}
	return nil
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func (f *fakeAPI) Updates() []ports.DriverUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.updates)
}

func (f *fakeAPI) GetTask(ctx context.Context, driverID string) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.offers) == 0 {
		return nil, nil
	}
	t := f.offers[0]
	f.offers = f.offers[1:]
	return t, nil
}

func (f *fakeAPI) UpdateDriver(ctx context.Context, driverID string, u ports.DriverUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
	return nil
}

func (f *fakeAPI) Accept(ctx context.Context, taskID, driverID string) error {
	return f.record("accept", taskID)
}

func (f *fakeAPI) Reject(ctx context.Context, taskID, driverID string) error {
	return f.record("reject", taskID)
}

func (f *fakeAPI) Start(ctx context.Context, taskID, driverID string) error {
	return f.record("start", taskID)
}

func (f *fakeAPI) Complete(ctx context.Context, taskID, driverID string) error {
	return f.record("complete", taskID)
}

func (f *fakeAPI) CompleteReturn(ctx context.Context, taskID string) error {
	return f.record("return", taskID)
}

func (f *fakeAPI) DoorstepIDCheck(ctx context.Context, orderID, sessionRef string) (ports.IDCheckResult, error) {
	if err := f.record("id_check", orderID); err != nil {
		return ports.IDCheckResult{}, err
	}
	return f.idCheck, nil
}

func (f *fakeAPI) DeliverConfirm(ctx context.Context, orderID, attestationRef string, gps domain.LatLng) error {
	return f.record("deliver_confirm", orderID)
}

func (f *fakeAPI) Refuse(ctx context.Context, orderID, reasonCode, notes string, gps domain.LatLng) error {
	return f.record("refuse", orderID+"/"+reasonCode)
}

type recordingVoice struct {
	mu     sync.Mutex
	spoken []string
}

func (v *recordingVoice) Speak(ctx context.Context, text string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.spoken = append(v.spoken, text)
	return nil
}

func (v *recordingVoice) Spoken() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.spoken)
}

type harness struct {
	session *Session
	api     *fakeAPI
	src     *location.ChannelSource
	voice   *recordingVoice
	clock   *clock.Fake
	cancel  context.CancelFunc
	done    chan error
}

func newHarness(t *testing.T, api *fakeAPI, cfg navigation.Config) *harness {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	routes := routing.NewMockRouteProvider(routing.StraightRoute(start, store), nil)
	nav := navigation.New(routes, clk, nil, cfg)

	h := &harness{
		api:   api,
		src:   location.NewChannelSource(16),
		voice: &recordingVoice{},
		clock: clk,
		done:  make(chan error, 1),
	}
	h.session = NewSession(nav, api, h.src, h.voice, clk, nil, Options{DriverID: "drv_demo"})

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.session.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
			t.Errorf("session did not stop")
		}
	})
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (h *harness) waitPhase(t *testing.T, p navigation.Phase) {
	t.Helper()
	waitFor(t, fmt.Sprintf("phase %s", p), func() bool {
		return h.session.Navigator().Snapshot().Phase == p
	})
}

func (h *harness) push(t *testing.T, c domain.LatLng) {
	t.Helper()
	if err := h.src.Push(context.Background(), domain.Position{Lat: c.Lat, Lng: c.Lng}); err != nil {
		t.Fatalf("Push: %v", err)
	}
}

func TestSessionDeliveryWithIDCheck(t *testing.T) {
	api := &fakeAPI{offers: []*domain.Task{offeredTask()}, idCheck: ports.IDCheckResult{Passed: true}}
	h := newHarness(t, api, navigation.Config{})
	ctx := context.Background()

	h.waitPhase(t, navigation.PhaseOfferReceived)
	if err := h.session.Accept(ctx); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	h.push(t, start)
	h.push(t, store)
	h.waitPhase(t, navigation.PhaseAtPickup)
	if err := h.session.ConfirmPickup(ctx); err != nil {
		t.Fatalf("ConfirmPickup: %v", err)
	}

	h.push(t, customer)
	h.waitPhase(t, navigation.PhaseAtDelivery)
	res, err := h.session.StartIDCheck(ctx, "sess_1")
	if err != nil || !res.Passed {
		t.Fatalf("StartIDCheck = %+v, %v", res, err)
	}
	if p := h.session.Navigator().Snapshot().Phase; p != navigation.PhaseIDVerified {
		t.Fatalf("phase = %s, want ID_VERIFIED", p)
	}
	if err := h.session.ConfirmDelivery(ctx, "att_1"); err != nil {
		t.Fatalf("ConfirmDelivery: %v", err)
	}
	h.waitPhase(t, navigation.PhaseIdle)

	want := []string{"accept task_1", "start task_1", "id_check ord_1", "deliver_confirm ord_1", "complete task_1"}
	if got := api.Calls(); !slices.Equal(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}

	waitFor(t, "voice drained", func() bool {
		return len(h.session.Navigator().Snapshot().VoiceQueue) == 0
	})
	spoken := h.voice.Spoken()
	for _, line := range []string{
		"You are arriving at the pickup location",
		"You have arrived at the delivery location",
		"Customer identity confirmed",
	} {
		if !slices.Contains(spoken, line) {
			t.Fatalf("spoken = %q, missing %q", spoken, line)
		}
	}
}

// reachDelivery drives an accepted task to AT_DELIVERY.
func (h *harness) reachDelivery(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	h.waitPhase(t, navigation.PhaseOfferReceived)
	if err := h.session.Accept(ctx); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	h.push(t, store)
	h.waitPhase(t, navigation.PhaseAtPickup)
	if err := h.session.ConfirmPickup(ctx); err != nil {
		t.Fatalf("ConfirmPickup: %v", err)
	}
	h.push(t, customer)
	h.waitPhase(t, navigation.PhaseAtDelivery)
}

func TestSessionFailedIDCheckReturnsToStore(t *testing.T) {
	api := &fakeAPI{offers: []*domain.Task{offeredTask()}, idCheck: ports.IDCheckResult{ReasonCode: "UNDERAGE"}}
	h := newHarness(t, api, navigation.Config{})
	h.reachDelivery(t)

	res, err := h.session.StartIDCheck(context.Background(), "sess_1")
	if err != nil || res.Passed || res.ReasonCode != "UNDERAGE" {
		t.Fatalf("StartIDCheck = %+v, %v", res, err)
	}
	if p := h.session.Navigator().Snapshot().Phase; p != navigation.PhaseReturningToStore {
		t.Fatalf("phase = %s, want RETURNING_TO_STORE", p)
	}

	h.push(t, store)
	h.waitPhase(t, navigation.PhaseIdle)
	waitFor(t, "return completion", func() bool {
		return slices.Contains(api.Calls(), "return task_1")
	})

	want := []string{"accept task_1", "start task_1", "id_check ord_1", "return task_1"}
	if got := api.Calls(); !slices.Equal(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	waitFor(t, "voice drained", func() bool {
		return len(h.session.Navigator().Snapshot().VoiceQueue) == 0
	})
	spoken := h.voice.Spoken()
	for _, line := range []string{
		"Delivery refused. Return the order to the store",
		"You have returned to the store",
	} {
		if !slices.Contains(spoken, line) {
			t.Fatalf("spoken = %q, missing %q", spoken, line)
		}
	}
}

func TestSessionConcurrentActionsAreSerialised(t *testing.T) {
	api := &fakeAPI{
		offers:  []*domain.Task{offeredTask()},
		hold:    "complete",
		held:    make(chan struct{}),
		release: make(chan struct{}),
	}
	h := newHarness(t, api, navigation.Config{})
	h.reachDelivery(t)
	ctx := context.Background()

	confirmed := make(chan error, 1)
	go func() { confirmed <- h.session.ConfirmDelivery(ctx, "") }()
	<-api.held

	refused := make(chan error, 1)
	go func() { refused <- h.session.Refuse(ctx, "NO_ID", "") }()
	time.Sleep(20 * time.Millisecond)
	if slices.Contains(api.Calls(), "refuse ord_1/NO_ID") {
		t.Fatalf("refusal reached the backend while delivery was completing")
	}

	close(api.release)
	if err := <-confirmed; err != nil {
		t.Fatalf("ConfirmDelivery: %v", err)
	}
	if err := <-refused; !errors.Is(err, navigation.ErrInvalidTransition) {
		t.Fatalf("Refuse = %v, want ErrInvalidTransition", err)
	}

	if p := h.session.Navigator().Snapshot().Phase; p != navigation.PhaseIdle {
		t.Fatalf("phase = %s, want IDLE", p)
	}
	want := []string{"accept task_1", "start task_1", "complete task_1"}
	if got := api.Calls(); !slices.Equal(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
}

func TestSessionRefusal(t *testing.T) {
	api := &fakeAPI{offers: []*domain.Task{offeredTask()}}
	h := newHarness(t, api, navigation.Config{})
	ctx := context.Background()

	h.waitPhase(t, navigation.PhaseOfferReceived)
	if err := h.session.Accept(ctx); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	h.push(t, store)
	h.waitPhase(t, navigation.PhaseAtPickup)
	if err := h.session.ConfirmPickup(ctx); err != nil {
		t.Fatalf("ConfirmPickup: %v", err)
	}
	h.push(t, customer)
	h.waitPhase(t, navigation.PhaseAtDelivery)

	if err := h.session.Refuse(ctx, "NO_ID", ""); err != nil {
		t.Fatalf("Refuse: %v", err)
	}
	if p := h.session.Navigator().Snapshot().Phase; p != navigation.PhaseReturningToStore {
		t.Fatalf("phase = %s, want RETURNING_TO_STORE", p)
	}
	if got := api.Calls(); got[len(got)-1] != "refuse ord_1/NO_ID" {
		t.Fatalf("calls = %v", got)
	}
}

func TestSessionBackendFailureKeepsPhase(t *testing.T) {
	api := &fakeAPI{offers: []*domain.Task{offeredTask()}, failOn: "accept"}
	h := newHarness(t, api, navigation.Config{})

	h.waitPhase(t, navigation.PhaseOfferReceived)
	if err := h.session.Accept(context.Background()); err == nil {
		t.Fatalf("Accept succeeded with failing backend")
	}
	if p := h.session.Navigator().Snapshot().Phase; p != navigation.PhaseOfferReceived {
		t.Fatalf("phase = %s, want OFFER_RECEIVED", p)
	}
}

func TestSessionActionOutOfPhase(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api, navigation.Config{})
	ctx := context.Background()

	if err := h.session.Accept(ctx); !errors.Is(err, navigation.ErrInvalidTransition) {
		t.Fatalf("Accept in IDLE = %v, want ErrInvalidTransition", err)
	}
	if _, err := h.session.StartIDCheck(ctx, "s"); !errors.Is(err, navigation.ErrInvalidTransition) {
		t.Fatalf("StartIDCheck in IDLE = %v, want ErrInvalidTransition", err)
	}
	if len(api.Calls()) != 0 {
		t.Fatalf("backend called: %v", api.Calls())
	}
}

func TestSessionDeliveryRequiresIDCheckWhenConfigured(t *testing.T) {
	api := &fakeAPI{offers: []*domain.Task{offeredTask()}}
	h := newHarness(t, api, navigation.Config{RequireIDCheck: true})
	ctx := context.Background()

	h.waitPhase(t, navigation.PhaseOfferReceived)
	if err := h.session.Accept(ctx); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	h.push(t, store)
	h.waitPhase(t, navigation.PhaseAtPickup)
	if err := h.session.ConfirmPickup(ctx); err != nil {
		t.Fatalf("ConfirmPickup: %v", err)
	}
	h.push(t, customer)
	h.waitPhase(t, navigation.PhaseAtDelivery)

	if err := h.session.ConfirmDelivery(ctx, ""); !errors.Is(err, navigation.ErrInvalidTransition) {
		t.Fatalf("ConfirmDelivery = %v, want ErrInvalidTransition", err)
	}
	if slices.Contains(api.Calls(), "complete task_1") {
		t.Fatalf("task completed without ID check")
	}
}

func TestSessionReportsPosition(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api, navigation.Config{})

	h.push(t, start)
	waitFor(t, "position", func() bool { return h.session.Navigator().Snapshot().Position != nil })
	// Poll and report loops are both asleep.
	waitCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.clock.BlockUntil(waitCtx, 2); err != nil {
		t.Fatalf("poll and report loops never slept: %v", err)
	}
	h.clock.Advance(DefaultReportInterval)

	waitFor(t, "driver update", func() bool { return len(api.Updates()) > 0 })
	u := api.Updates()[0]
	if u.Lat != start.Lat || u.Lng != start.Lng || u.Status != ports.DriverIdle {
		t.Fatalf("update = %+v", u)
	}
}
