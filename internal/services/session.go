// Package services runs a driver session: it feeds positions into the
// navigator, keeps the backend informed, and turns driver actions into
// backend calls followed by navigation events.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"driver-nav-service/internal/domain"
	"driver-nav-service/internal/navigation"
	"driver-nav-service/internal/platform/clock"
	"driver-nav-service/internal/platform/logging"
	"driver-nav-service/internal/ports"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultPollInterval   = 5 * time.Second
	DefaultReportInterval = 5 * time.Second
)

type Options struct {
	DriverID       string
	PollInterval   time.Duration
	ReportInterval time.Duration
}

// Session owns the loops around one Navigator. Actions are safe to call
// from any goroutine while Run is active; they run one at a time.
type Session struct {
	nav      *navigation.Navigator
	api      ports.TaskAPI
	location ports.LocationSource
	voice    ports.VoiceSink
	clock    clock.Clock
	log      *slog.Logger
	opts     Options

	returns chan string

	// actions serialises driver actions from the phase check through the
	// backend call to the dispatch, so two actions cannot both pass the check.
	actions sync.Mutex
}

func NewSession(nav *navigation.Navigator, api ports.TaskAPI, loc ports.LocationSource, voice ports.VoiceSink, clk clock.Clock, lg *slog.Logger, opts Options) *Session {
	if clk == nil {
		clk = clock.Real{}
	}
	lg = logging.OrDiscard(lg)
	if voice == nil {
		voice = LogVoice{Log: lg}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = DefaultReportInterval
	}

	s := &Session{
		nav:      nav,
		api:      api,
		location: loc,
		voice:    voice,
		clock:    clk,
		log:      lg.With(slog.String("driver_id", opts.DriverID)),
		opts:     opts,
		returns:  make(chan string, 16),
	}
	nav.OnTransition(s.observe)
	return s
}

func (s *Session) Navigator() *navigation.Navigator { return s.nav }

// Run starts the navigator and every session loop, and returns when ctx
// ends or a loop fails.
func (s *Session) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.nav.Run(ctx) })
	g.Go(func() error { return s.forwardLocation(ctx) })
	g.Go(func() error { return s.pollTasks(ctx) })
	g.Go(func() error { return s.reportPosition(ctx) })
	g.Go(func() error { return s.drainVoice(ctx) })
	g.Go(func() error { return s.completeReturns(ctx) })

	return g.Wait()
}

// observe runs on the navigator goroutine and must not block.
func (s *Session) observe(t navigation.Transition) {
	if t.From != navigation.PhaseReturningToStore || t.To != navigation.PhaseIdle || t.Cause != navigation.CauseReturned {
		return
	}
	select {
	case s.returns <- t.TaskID:
	default:
		s.log.Warn("return completion dropped", slog.String("task_id", t.TaskID))
	}
}

func (s *Session) completeReturns(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case id := <-s.returns:
			if err := s.api.CompleteReturn(ctx, id); err != nil {
				s.log.Error("complete return failed", slog.String("task_id", id), slog.Any("err", err))
			}
		}
	}
}

func (s *Session) forwardLocation(ctx context.Context) error {
	if s.location == nil {
		<-ctx.Done()
		return nil
	}
	samples, err := s.location.Watch(ctx)
	if err != nil {
		return fmt.Errorf("session: watch location: %w", err)
	}

	for sample := range samples {
		var ev navigation.Event = navigation.PositionUpdated{Position: sample.Position}
		if sample.Err != nil {
			ev = navigation.LocationFailed{Err: sample.Err.Error()}
		}
		if err := s.nav.Dispatch(ctx, ev); err != nil && !stopping(ctx, err) {
			s.log.Warn("location event rejected", slog.Any("err", err))
		}
	}
	s.log.Info("location source ended")
	return nil
}

// every calls fn now and then once per interval until ctx ends.
func (s *Session) every(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	for {
		fn(ctx)
		if err := s.clock.Sleep(ctx, interval); err != nil {
			return nil
		}
	}
}

func (s *Session) pollTasks(ctx context.Context) error {
	return s.every(ctx, s.opts.PollInterval, s.pollOnce)
}

func (s *Session) pollOnce(ctx context.Context) {
	if s.nav.Snapshot().Phase != navigation.PhaseIdle {
		return
	}
	task, err := s.api.GetTask(ctx, s.opts.DriverID)
	if err != nil {
		if !stopping(ctx, err) {
			s.log.Warn("task poll failed", slog.Any("err", err))
		}
		return
	}
	if task == nil {
		return
	}

	err = s.nav.Dispatch(ctx, navigation.TaskOffered{Task: *task})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidTask):
		s.log.Error("backend offered malformed task", slog.String("task_id", task.ID), slog.Any("err", err))
	case !stopping(ctx, err):
		s.log.Warn("task offer rejected", slog.String("task_id", task.ID), slog.Any("err", err))
	}
}

func (s *Session) reportPosition(ctx context.Context) error {
	return s.every(ctx, s.opts.ReportInterval, s.reportOnce)
}

func (s *Session) reportOnce(ctx context.Context) {
	snap := s.nav.Snapshot()
	if snap.Position == nil {
		return
	}
	status := ports.DriverIdle
	if snap.Phase.OnTask() {
		status = ports.DriverOnTask
	}
	u := ports.DriverUpdate{Lat: snap.Position.Lat, Lng: snap.Position.Lng, Status: status}
	if err := s.api.UpdateDriver(ctx, s.opts.DriverID, u); err != nil && !stopping(ctx, err) {
		s.log.Warn("position report failed", slog.Any("err", err))
	}
}

// drainVoice speaks queued lines one at a time, oldest first, and removes
// each only after it was spoken.
func (s *Session) drainVoice(ctx context.Context) error {
	sub := s.nav.Subscribe()
	defer sub.Unsubscribe()

	for {
		q := s.nav.Snapshot().VoiceQueue
		if len(q) == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-sub.C:
				continue
			}
		}

		head := q[0]
		if err := s.voice.Speak(ctx, head.Text); err != nil {
			if stopping(ctx, err) {
				return nil
			}
			s.log.Warn("speak failed", slog.Uint64("seq", head.Seq), slog.Any("err", err))
		}
		err := s.nav.Dispatch(ctx, navigation.VoiceDequeued{Seq: head.Seq})
		switch {
		case err == nil, errors.Is(err, navigation.ErrVoiceSeq):
			// A new offer may have replaced the queue while speaking.
		case stopping(ctx, err):
			return nil
		default:
			return fmt.Errorf("session: dequeue voice %d: %w", head.Seq, err)
		}
	}
}

func stopping(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, navigation.ErrStopped)
}

// require returns the active task when the snapshot is in one of phases.
func (s *Session) require(action string, phases ...navigation.Phase) (navigation.State, error) {
	snap := s.nav.Snapshot()
	if !slices.Contains(phases, snap.Phase) || snap.Task == nil {
		return snap, fmt.Errorf("%w: %s in %s", navigation.ErrInvalidTransition, action, snap.Phase)
	}
	return snap, nil
}

// gps is the driver's last fix, or the delivery point when there is none.
func gps(snap navigation.State) domain.LatLng {
	if snap.Position != nil {
		return snap.Position.LatLng()
	}
	if snap.Task != nil && snap.Task.Delivery != nil {
		return snap.Task.Delivery.LatLng()
	}
	return domain.LatLng{}
}

func (s *Session) Accept(ctx context.Context) error {
	s.actions.Lock()
	defer s.actions.Unlock()

	snap, err := s.require("accept", navigation.PhaseOfferReceived)
	if err != nil {
		return err
	}
	if err := s.api.Accept(ctx, snap.Task.ID, s.opts.DriverID); err != nil {
		return fmt.Errorf("session: accept: %w", err)
	}
	return s.nav.Dispatch(ctx, navigation.OfferAccepted{})
}

func (s *Session) Reject(ctx context.Context) error {
	s.actions.Lock()
	defer s.actions.Unlock()

	snap, err := s.require("reject", navigation.PhaseOfferReceived)
	if err != nil {
		return err
	}
	if err := s.api.Reject(ctx, snap.Task.ID, s.opts.DriverID); err != nil {
		return fmt.Errorf("session: reject: %w", err)
	}
	return s.nav.Dispatch(ctx, navigation.OfferRejected{})
}

func (s *Session) ConfirmPickup(ctx context.Context) error {
	s.actions.Lock()
	defer s.actions.Unlock()

	snap, err := s.require("confirm pickup", navigation.PhaseAtPickup)
	if err != nil {
		return err
	}
	if err := s.api.Start(ctx, snap.Task.ID, s.opts.DriverID); err != nil {
		return fmt.Errorf("session: start task: %w", err)
	}
	return s.nav.Dispatch(ctx, navigation.PickupConfirmed{})
}

// StartIDCheck submits a doorstep scan session. Calling it again while the
// check is pending resubmits the same session.
func (s *Session) StartIDCheck(ctx context.Context, sessionRef string) (ports.IDCheckResult, error) {
	s.actions.Lock()
	defer s.actions.Unlock()

	snap, err := s.require("start id check", navigation.PhaseAtDelivery, navigation.PhaseVerifyingID)
	if err != nil {
		return ports.IDCheckResult{}, err
	}
	if snap.Phase == navigation.PhaseAtDelivery {
		if err := s.nav.Dispatch(ctx, navigation.IDCheckStarted{}); err != nil {
			return ports.IDCheckResult{}, err
		}
	}

	res, err := s.api.DoorstepIDCheck(ctx, snap.Task.OrderID, sessionRef)
	if err != nil {
		return res, fmt.Errorf("session: id check: %w", err)
	}
	if res.Passed {
		return res, s.nav.Dispatch(ctx, navigation.IDCheckPassed{})
	}
	return res, s.nav.Dispatch(ctx, navigation.IDCheckFailed{Reason: res.ReasonCode})
}

func (s *Session) Refuse(ctx context.Context, reasonCode, notes string) error {
	s.actions.Lock()
	defer s.actions.Unlock()

	snap, err := s.require("refuse", navigation.PhaseAtDelivery)
	if err != nil {
		return err
	}
	if err := s.api.Refuse(ctx, snap.Task.OrderID, reasonCode, notes, gps(snap)); err != nil {
		return fmt.Errorf("session: refuse: %w", err)
	}
	return s.nav.Dispatch(ctx, navigation.OrderRefused{Reason: reasonCode})
}

// ConfirmDelivery records the handover. After a passed ID check the
// attestation is confirmed with the backend before the task completes.
func (s *Session) ConfirmDelivery(ctx context.Context, attestationRef string) error {
	s.actions.Lock()
	defer s.actions.Unlock()

	phases := []navigation.Phase{navigation.PhaseIDVerified}
	if !s.nav.Config().RequireIDCheck {
		phases = append(phases, navigation.PhaseAtDelivery)
	}
	snap, err := s.require("confirm delivery", phases...)
	if err != nil {
		return err
	}

	if snap.Phase == navigation.PhaseIDVerified {
		if err := s.api.DeliverConfirm(ctx, snap.Task.OrderID, attestationRef, gps(snap)); err != nil {
			return fmt.Errorf("session: confirm delivery: %w", err)
		}
	}
	if err := s.api.Complete(ctx, snap.Task.ID, s.opts.DriverID); err != nil {
		return fmt.Errorf("session: complete task: %w", err)
	}
	return s.nav.Dispatch(ctx, navigation.DeliveryConfirmed{})
}

func (s *Session) Reset(ctx context.Context, reason string) error {
	s.actions.Lock()
	defer s.actions.Unlock()
	return s.nav.Dispatch(ctx, navigation.Reset{Reason: reason})
}
