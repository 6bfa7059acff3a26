package dispatch

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/technosupport/ts-dispatch/internal/alerts"
	"github.com/technosupport/ts-dispatch/internal/backoff"
	"github.com/technosupport/ts-dispatch/internal/metrics"
	"github.com/technosupport/ts-dispatch/internal/stream"
	"github.com/technosupport/ts-dispatch/internal/video"
)

// ViewMode mirrors the three ways cameras render on screen.
type ViewMode string

const (
	ViewFocus ViewMode = "focus"
	ViewGrid  ViewMode = "grid"
	ViewWall  ViewMode = "videoWall"
)

const recentAlertsCap = 50

// Backend is the slice of the REST collaborator the orchestrator drives.
type Backend interface {
	ActiveAlerts(ctx context.Context) ([]alerts.Alert, error)
	UpdateAlertStatus(ctx context.Context, alertID string, status alerts.Status) error
	AddNote(ctx context.Context, alertID, text string) error
}

// Continuity is the session snapshot slot.
type Continuity interface {
	Save(ctx context.Context, identity string, as []alerts.Alert) error
	TryRestore(ctx context.Context, identity string) ([]alerts.Alert, bool, error)
}

// Videos is the per-camera session supervisor.
type Videos interface {
	SetView(cameraIDs []string)
	CloseAll()
	Infos() []video.Info
}

// Sounder plays the audible alert.
type Sounder interface {
	Play(a alerts.Alert)
}

// Options tune the orchestrator's two UX timers.
type Options struct {
	// SettleDelay debounces the incident auto-close once every alert in
	// the open incident is Resolved. Fixed, no jitter: it guards against
	// flicker, not against load.
	SettleDelay time.Duration
	// WallHighlight bounds how long a wall tile stays marked alerting.
	WallHighlight time.Duration
}

const (
	defaultSettleDelay   = 1500 * time.Millisecond
	defaultWallHighlight = 10 * time.Second

	chimeWindow  = time.Minute
	chimeMaxKeys = 4096
)

// ReadModel is the immutable UI-facing projection.
type ReadModel struct {
	ConnectionStatus stream.Status  `json:"connectionStatus"`
	OpenSiteID       string         `json:"openSiteId,omitempty"`
	OpenIncident     []alerts.Alert `json:"openIncident,omitempty"`
	ViewMode         ViewMode       `json:"viewMode"`
	FocusedCameraID  string         `json:"focusedCameraId,omitempty"`
	AlertingCameraID string         `json:"alertingCameraId,omitempty"`
	RecentAlerts     []alerts.Alert `json:"recentAlerts"`
	VideoSessions    []video.Info   `json:"videoSessions"`
}

// Orchestrator is the composition root of the live view: the single
// writer of the incident store, the router for push-channel events, and
// the owner of the auto-open/auto-close policy. Operator REST calls are
// fire-and-forget; their effects come back through the event stream.
type Orchestrator struct {
	identity string
	store    *alerts.Store
	cache    Continuity
	backend  Backend
	videos   Videos
	sounder  Sounder
	chime    *chimeGate
	opts     Options

	settle    *backoff.Timer
	wallTimer *backoff.Timer

	mu               sync.Mutex
	status           stream.Status
	openSiteID       string
	viewMode         ViewMode
	focusedCameraID  string
	alertingCameraID string
	muted            bool

	events   chan alerts.Event
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(identity string, store *alerts.Store, cache Continuity, be Backend, videos Videos, sounder Sounder, opts Options) *Orchestrator {
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = defaultSettleDelay
	}
	if opts.WallHighlight <= 0 {
		opts.WallHighlight = defaultWallHighlight
	}
	return &Orchestrator{
		identity:  identity,
		store:     store,
		cache:     cache,
		backend:   be,
		videos:    videos,
		sounder:   sounder,
		chime:     newChimeGate(chimeMaxKeys, chimeWindow),
		opts:      opts,
		settle:    backoff.NewTimer(),
		wallTimer: backoff.NewTimer(),
		status:    stream.StatusConnecting,
		viewMode:  ViewFocus,
		events:    make(chan alerts.Event, 256),
		quit:      make(chan struct{}),
	}
}

// Start hydrates the store (restore-or-fetch, never both) and starts the
// event loop.
func (o *Orchestrator) Start(ctx context.Context) error {
	restored, ok, err := o.cache.TryRestore(ctx, o.identity)
	if err != nil {
		log.Printf("[Dispatch] Snapshot restore failed: %v", err)
		ok = false
	}
	if ok {
		log.Printf("[Dispatch] Restoring previous session state (%d alerts)", len(restored))
		o.store.Replace(restored)
	} else {
		as, err := o.backend.ActiveAlerts(ctx)
		if err != nil {
			// A dead backend at mount is not fatal: the push channel
			// will fill the store as events arrive.
			log.Printf("[ERROR] Dispatch: active alerts fetch failed: %v", err)
			as = nil
		}
		o.store.Replace(as)
	}

	o.wg.Add(1)
	go o.run()
	return nil
}

// Stop suspends the live view: snapshots unresolved state for the next
// mount, stops the loop, and tears down every video session.
func (o *Orchestrator) Stop(ctx context.Context) {
	o.stopOnce.Do(func() {
		if o.store.HasUnresolved() {
			if err := o.cache.Save(ctx, o.identity, o.store.Snapshot()); err != nil {
				log.Printf("[ERROR] Dispatch: snapshot save failed: %v", err)
			}
		}
		close(o.quit)
		o.wg.Wait()
		o.settle.Stop()
		o.wallTimer.Stop()
		o.videos.CloseAll()
	})
}

// Callbacks adapts the orchestrator to the stream client contract.
func (o *Orchestrator) Callbacks() stream.Callbacks {
	return stream.Callbacks{
		OnEvent:  o.HandleEvent,
		OnStatus: o.HandleStatus,
	}
}

// HandleEvent enqueues one push-channel event for the single-writer loop.
func (o *Orchestrator) HandleEvent(ev alerts.Event) {
	select {
	case o.events <- ev:
	case <-o.quit:
	}
}

func (o *Orchestrator) HandleStatus(st stream.Status) {
	o.mu.Lock()
	o.status = st
	o.mu.Unlock()
}

// SetAudible toggles the chime without touching routing. Wired to config
// hot-reload.
func (o *Orchestrator) SetAudible(enabled bool) {
	o.mu.Lock()
	o.muted = !enabled
	o.mu.Unlock()
}

func (o *Orchestrator) run() {
	defer o.wg.Done()
	for {
		select {
		case <-o.quit:
			return
		case ev := <-o.events:
			switch ev.Kind {
			case alerts.EventCreated:
				o.applyCreated(ev)
			case alerts.EventUpdated:
				o.applyUpdated(ev)
			}
		}
	}
}

func (o *Orchestrator) applyCreated(ev alerts.Event) {
	delta := o.store.Apply(ev)
	if delta.Rejected {
		return
	}
	a := delta.Alert

	o.mu.Lock()
	muted := o.muted
	o.mu.Unlock()
	if delta.Inserted && !muted && o.sounder != nil && o.chime.shouldChime(a.ID) {
		o.sounder.Play(a)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.viewMode == ViewWall {
		// Wall view highlights the alerting tile instead of stealing
		// focus from the whole wall.
		o.alertingCameraID = a.CameraID
		o.wallTimer.Schedule(o.opts.WallHighlight, o.clearWallHighlight)
	}

	switch {
	case o.openSiteID == "":
		o.openSiteID = a.SiteID
		o.settle.Cancel()
		log.Printf("[Dispatch] Incident opened for site %s (alert %s)", a.SiteID, a.ID)
		if o.viewMode != ViewWall && a.CameraID != "" {
			o.viewMode = ViewFocus
			o.focusedCameraID = a.CameraID
			o.videos.SetView([]string{a.CameraID})
		}
	case o.openSiteID == a.SiteID:
		// Fresh alert for the open incident keeps it open.
		o.settle.Cancel()
	}

	o.checkSettleLocked()
}

func (o *Orchestrator) applyUpdated(ev alerts.Event) {
	delta := o.store.Apply(ev)
	if delta.Rejected {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.checkSettleLocked()
}

// checkSettleLocked arms the auto-close timer when every alert of the
// open incident is Resolved, and disarms it otherwise.
func (o *Orchestrator) checkSettleLocked() {
	if o.openSiteID == "" {
		return
	}
	if !o.store.SiteSettled(o.openSiteID) {
		o.settle.Cancel()
		return
	}
	site := o.openSiteID
	o.settle.Schedule(o.opts.SettleDelay, func() { o.autoClose(site) })
}

func (o *Orchestrator) autoClose(siteID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.openSiteID != siteID {
		return
	}
	o.openSiteID = ""
	metrics.IncidentAutoCloses.Inc()
	log.Printf("[Dispatch] Incident for site %s settled, view closed", siteID)
}

func (o *Orchestrator) clearWallHighlight() {
	o.mu.Lock()
	o.alertingCameraID = ""
	o.mu.Unlock()
}

// OpenIncident is the operator selecting an alert from the log: the
// incident opens and the alert's camera takes focus.
func (o *Orchestrator) OpenIncident(siteID, cameraID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.settle.Cancel()
	o.openSiteID = siteID
	if cameraID != "" {
		o.viewMode = ViewFocus
		o.focusedCameraID = cameraID
		o.videos.SetView([]string{cameraID})
	}
}

// CloseIncident is the operator dismissing the incident view.
func (o *Orchestrator) CloseIncident() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.settle.Cancel()
	o.openSiteID = ""
}

// FocusCamera switches to single-camera view. The departing session is
// torn down by the video manager before the new one starts.
func (o *Orchestrator) FocusCamera(cameraID string) {
	o.mu.Lock()
	o.viewMode = ViewFocus
	o.focusedCameraID = cameraID
	o.alertingCameraID = ""
	o.wallTimer.Cancel()
	o.mu.Unlock()
	o.videos.SetView([]string{cameraID})
}

// ShowGrid renders one site's cameras side by side, a session each.
func (o *Orchestrator) ShowGrid(cameraIDs []string) {
	o.mu.Lock()
	o.viewMode = ViewGrid
	o.focusedCameraID = ""
	o.alertingCameraID = ""
	o.wallTimer.Cancel()
	o.mu.Unlock()
	o.videos.SetView(cameraIDs)
}

// ShowWall renders every monitored camera.
func (o *Orchestrator) ShowWall(cameraIDs []string) {
	o.mu.Lock()
	o.viewMode = ViewWall
	o.focusedCameraID = ""
	o.mu.Unlock()
	o.videos.SetView(cameraIDs)
}

// CloseView clears the media area without touching the incident state.
func (o *Orchestrator) CloseView() {
	o.mu.Lock()
	o.viewMode = ViewFocus
	o.focusedCameraID = ""
	o.alertingCameraID = ""
	o.wallTimer.Cancel()
	o.mu.Unlock()
	o.videos.CloseAll()
}

// Acknowledge requests the transition server-side. No local mutation:
// the authoritative update arrives as alert-updated on the push channel.
func (o *Orchestrator) Acknowledge(ctx context.Context, alertID string) error {
	return o.backend.UpdateAlertStatus(ctx, alertID, alerts.StatusAcknowledged)
}

func (o *Orchestrator) Resolve(ctx context.Context, alertID string) error {
	return o.backend.UpdateAlertStatus(ctx, alertID, alerts.StatusResolved)
}

func (o *Orchestrator) AddNote(ctx context.Context, alertID, text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("empty note")
	}
	return o.backend.AddNote(ctx, alertID, text)
}

// AcknowledgeAll acknowledges every New alert of the open incident.
func (o *Orchestrator) AcknowledgeAll(ctx context.Context) error {
	return o.bulkUpdate(ctx, alerts.StatusAcknowledged, func(a alerts.Alert) bool {
		return a.Status == alerts.StatusNew
	})
}

// ResolveAll resolves everything still open in the incident.
func (o *Orchestrator) ResolveAll(ctx context.Context) error {
	return o.bulkUpdate(ctx, alerts.StatusResolved, func(a alerts.Alert) bool {
		return !a.Resolved()
	})
}

func (o *Orchestrator) bulkUpdate(ctx context.Context, status alerts.Status, match func(alerts.Alert) bool) error {
	o.mu.Lock()
	site := o.openSiteID
	o.mu.Unlock()
	if site == "" {
		return nil
	}

	var errs []error
	for _, a := range o.store.AlertsForSite(site) {
		if !match(a) {
			continue
		}
		if err := o.backend.UpdateAlertStatus(ctx, a.ID, status); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReadModel snapshots the UI-facing state. Alerts are copies; callers
// never see the store's internals.
func (o *Orchestrator) ReadModel() ReadModel {
	o.mu.Lock()
	rm := ReadModel{
		ConnectionStatus: o.status,
		OpenSiteID:       o.openSiteID,
		ViewMode:         o.viewMode,
		FocusedCameraID:  o.focusedCameraID,
		AlertingCameraID: o.alertingCameraID,
	}
	o.mu.Unlock()

	if rm.OpenSiteID != "" {
		rm.OpenIncident = o.store.AlertsForSite(rm.OpenSiteID)
	}
	rm.RecentAlerts = o.store.Recent(recentAlertsCap)
	rm.VideoSessions = o.videos.Infos()
	return rm
}
