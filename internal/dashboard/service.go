// Package dashboard is the application service behind the HTTP API. It joins
// the maker registry, the running maker pool, settings and the activity feed.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"go.uber.org/zap"

	"github.com/harrylevesque/makerdash/internal/events"
	"github.com/harrylevesque/makerdash/internal/files"
	"github.com/harrylevesque/makerdash/internal/maker"
	"github.com/harrylevesque/makerdash/internal/models"
	"github.com/harrylevesque/makerdash/internal/store"
	"github.com/harrylevesque/makerdash/internal/utils"
)

var (
	ErrNotRunning = errors.New("maker is not running")
	ErrPortInUse  = errors.New("port already used by another maker")
)

func init() {
	utils.RegisterStatus(ErrNotRunning, http.StatusConflict)
	utils.RegisterStatus(ErrPortInUse, http.StatusConflict)
}

const (
	// recentActivity is how many entries the dashboard page shows.
	recentActivity = 5
	// summaryConcurrency bounds parallel maker queries when listing.
	summaryConcurrency = 8
	// callTimeout bounds a single maker query made while rendering a page.
	callTimeout = 5 * time.Second
	// defaultFeeRate is used when a send request leaves feerate empty, in sat/vB.
	defaultFeeRate = 2.0
	placeholder    = "--"
)

// Config tunes the service.
type Config struct {
	// DataRoot holds demo maker data and is the default parent of maker data
	// dirs.
	DataRoot string
	// RPCTimeout bounds Bitcoin Core calls.
	RPCTimeout time.Duration
	// MakerOptions are passed to every maker the service starts.
	MakerOptions []maker.Option
}

// Service implements the dashboard operations.
type Service struct {
	store    *store.Store
	manager  *maker.Manager
	settings *files.SettingsStore
	hub      *events.Hub
	logger   *zap.Logger
	cfg      Config

	// lifecycle serialises start, stop and remove so two requests cannot
	// race on one maker.
	lifecycle sync.Mutex

	healthMu sync.RWMutex
	health   map[string]error

	now func() time.Time
}

func New(st *store.Store, mgr *maker.Manager, settings *files.SettingsStore, hub *events.Hub, logger *zap.Logger, cfg Config) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hub == nil {
		hub = events.NewHub(0)
	}
	if cfg.DataRoot == "" {
		cfg.DataRoot = utils.GetDataRoot()
	}
	if cfg.RPCTimeout <= 0 {
		cfg.RPCTimeout = 10 * time.Second
	}
	return &Service{
		store:    st,
		manager:  mgr,
		settings: settings,
		hub:      hub,
		logger:   logger,
		cfg:      cfg,
		health:   make(map[string]error),
		now:      time.Now,
	}
}

// Hub returns the activity hub live subscribers attach to.
func (s *Service) Hub() *events.Hub { return s.hub }

// record stores an activity entry and publishes it. Failures are logged only;
// the feed never fails the operation that produced it.
func (s *Service) record(ctx context.Context, a models.Activity) {
	saved, err := s.store.Activity.Append(context.WithoutCancel(ctx), a)
	if err != nil {
		s.logger.Warn("append activity", zap.String("type", a.Type), zap.String("maker_id", a.MakerID), zap.Error(err))
		return
	}
	saved.Time = s.relativeTime(saved.CreatedAt)
	s.hub.Publish(saved)
}

func (s *Service) recordMaker(ctx context.Context, rec models.Maker, typ, details, status string) {
	s.record(ctx, models.Activity{
		Type:    typ,
		MakerID: rec.ID,
		Maker:   rec.Name,
		Details: details,
		Status:  status,
	})
}

// RecordHealth stores the latest ping results. A maker that starts failing
// gets a "Maker Error" entry in the feed.
func (s *Service) RecordHealth(results map[string]error) {
	s.healthMu.Lock()
	var newlyFailed []string
	for id, err := range results {
		if err != nil && s.health[id] == nil {
			newlyFailed = append(newlyFailed, id)
		}
		s.health[id] = err
	}
	s.healthMu.Unlock()

	for _, id := range newlyFailed {
		rec, err := s.store.Makers.Get(context.Background(), id)
		if err != nil {
			continue
		}
		s.recordMaker(context.Background(), rec, models.ActivityMakerError, results[id].Error(), "error")
	}
}

func (s *Service) healthOf(id string) error {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()
	return s.health[id]
}

func (s *Service) clearHealth(id string) {
	s.healthMu.Lock()
	delete(s.health, id)
	s.healthMu.Unlock()
}

// relativeTime renders t the way the activity feed shows it.
func (s *Service) relativeTime(t time.Time) string {
	d := s.now().Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d/time.Minute), "min") + " ago"
	case d < 24*time.Hour:
		return plural(int(d/time.Hour), "hour") + " ago"
	default:
		return plural(int(d/(24*time.Hour)), "day") + " ago"
	}
}

func plural(n int, unit string) string {
	if n == 1 || unit == "min" {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func (s *Service) withTimes(as []models.Activity) []models.Activity {
	for i := range as {
		as[i].Time = s.relativeTime(as[i].CreatedAt)
	}
	return as
}

// formatBTC renders sats as BTC with a fixed number of decimals.
func formatBTC(sats int64, decimals int) string {
	return strconv.FormatFloat(btcutil.Amount(sats).ToBTC(), 'f', decimals, 64)
}

// formatUptime renders a duration as "%dh %dm".
func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

// shortAddress abbreviates an address as "bc1q...7x4m".
func shortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:4] + "..." + addr[len(addr)-4:]
}
