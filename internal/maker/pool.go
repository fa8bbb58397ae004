package maker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/harrylevesque/makerdash/internal/channel"
	"github.com/harrylevesque/makerdash/internal/metrics"
	"github.com/harrylevesque/makerdash/internal/utils"
)

var (
	ErrMakerExists        = errors.New("maker already exists")
	ErrMakerNotFound      = errors.New("maker not found")
	ErrUnexpectedResponse = errors.New("unexpected response")
)

func init() {
	utils.RegisterStatus(ErrMakerExists, http.StatusConflict)
	utils.RegisterStatus(ErrMakerNotFound, http.StatusNotFound)
	utils.RegisterStatus(ErrServerError, http.StatusUnprocessableEntity)
	utils.RegisterStatus(ErrTorUnavailable, http.StatusNotFound)
	utils.RegisterStatus(channel.ErrRequestChannelClosed, http.StatusServiceUnavailable)
	utils.RegisterStatus(channel.ErrResponseChannelClosed, http.StatusServiceUnavailable)
}

// entry is a running maker: the calling half of its channel and the done
// channel of its serving goroutine.
type entry struct {
	requester *channel.Requester[Request, Response]
	done      chan struct{}
	startedAt time.Time
}

// Pool runs each maker in its own goroutine and routes requests to it by ID.
// It is safe for concurrent use.
type Pool struct {
	mu     sync.RWMutex
	makers map[string]*entry
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	wg     sync.WaitGroup
}

func NewPool(logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		makers: make(map[string]*entry),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// SpawnMaker starts serving b under id.
func (p *Pool) SpawnMaker(id string, b Backend) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.makers[id]; ok {
		return fmt.Errorf("%w: %s", ErrMakerExists, id)
	}
	if p.ctx.Err() != nil {
		return fmt.Errorf("pool closed")
	}

	requester, responder := channel.New[Request, Response](channel.DefaultBuffer)
	e := &entry{requester: requester, done: make(chan struct{}), startedAt: time.Now()}
	p.makers[id] = e
	metrics.SetMakersRunning(len(p.makers))

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(e.done)
		logger := p.logger.With(zap.String("maker_id", id))
		logger.Info("maker started", zap.String("data_dir", b.DataDir()))
		responder.Handle(p.ctx, func(req Request) (Response, bool) {
			resp := handleRequest(p.ctx, b, req)
			logFailure(logger, req, resp)
			return resp, resp.Kind != RespShutdown
		})
		logger.Info("maker stopped")
	}()
	return nil
}

// logFailure logs server errors. A maker without a tor hostname is the
// normal state for clearnet makers and is only logged at debug.
func logFailure(logger *zap.Logger, req Request, resp Response) {
	if resp.Kind != RespServerError {
		return
	}
	fields := []zap.Field{zap.String("kind", string(req.Kind)), zap.String("error", resp.Text)}
	if req.Kind == ReqGetTorAddress && resp.Text == ErrTorUnavailable.Error() {
		logger.Debug("maker request failed", fields...)
		return
	}
	logger.Warn("maker request failed", fields...)
}

func (p *Pool) get(id string) (*entry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.makers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMakerNotFound, id)
	}
	return e, nil
}

// Request sends req to the maker with the given id and waits for its reply.
func (p *Pool) Request(ctx context.Context, id string, req Request) (Response, error) {
	e, err := p.get(id)
	if err != nil {
		return Response{}, err
	}
	start := time.Now()
	resp, err := e.requester.Request(ctx, req)
	result := metrics.ResultOK
	switch {
	case err != nil:
		result = metrics.ResultTransportError
	case resp.Kind == RespServerError:
		result = metrics.ResultServerError
	}
	metrics.RecordMakerRequest(string(req.Kind), result, time.Since(start))
	return resp, err
}

func (p *Pool) Contains(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.makers[id]
	return ok
}

func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.makers)
}

func (p *Pool) IsEmpty() bool { return p.Len() == 0 }

// ListMakers returns the IDs in the pool, sorted.
func (p *Pool) ListMakers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.makers))
	for id := range p.makers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StartedAt reports when the maker was spawned.
func (p *Pool) StartedAt(id string) (time.Time, bool) {
	e, err := p.get(id)
	if err != nil {
		return time.Time{}, false
	}
	return e.startedAt, true
}

// Running reports whether the maker's serving goroutine is still alive.
func (p *Pool) Running(id string) bool {
	e, err := p.get(id)
	if err != nil {
		return false
	}
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

// RemoveMaker drops the maker from the pool and closes its request side. The
// returned channel is closed once its goroutine has exited.
func (p *Pool) RemoveMaker(id string) (<-chan struct{}, bool) {
	p.mu.Lock()
	e, ok := p.makers[id]
	if ok {
		delete(p.makers, id)
		metrics.SetMakersRunning(len(p.makers))
	}
	p.mu.Unlock()
	if !ok {
		return nil, false
	}
	e.requester.Close()
	return e.done, true
}

// Close stops every maker and waits for their goroutines.
func (p *Pool) Close() {
	p.mu.Lock()
	for id, e := range p.makers {
		e.requester.Close()
		delete(p.makers, id)
	}
	metrics.SetMakersRunning(0)
	p.mu.Unlock()
	p.cancel()
	p.wg.Wait()
}
