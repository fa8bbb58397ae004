package maker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harrylevesque/makerdash/internal/wallet"
)

// pingConcurrency bounds PingAll fan-out.
const pingConcurrency = 8

// Manager creates makers and exposes typed calls over the pool.
type Manager struct {
	pool   *Pool
	logger *zap.Logger
	opts   []Option
}

// NewManager returns a manager whose makers are initialised with opts.
func NewManager(logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		pool:   NewPool(logger),
		logger: logger,
		opts:   append([]Option{WithLogger(logger)}, opts...),
	}
}

// CreateMaker initialises a maker from cfg and spawns it under id.
func (m *Manager) CreateMaker(id string, cfg Config, opts ...Option) error {
	if cfg.Auth == nil || cfg.Auth.User == "" {
		return errors.New("RPC authentication credentials must be provided")
	}
	if m.pool.Contains(id) {
		return fmt.Errorf("%w: %s", ErrMakerExists, id)
	}
	all := append(append([]Option(nil), m.opts...), opts...)
	mk, err := Init(cfg, all...)
	if err != nil {
		if cfg.Taproot {
			return fmt.Errorf("failed to initialize taproot maker: %w", err)
		}
		return fmt.Errorf("failed to initialize maker: %w", err)
	}
	return m.pool.SpawnMaker(id, mk)
}

// SpawnExistingMaker serves an already initialised backend under id.
func (m *Manager) SpawnExistingMaker(id string, b Backend) error {
	return m.pool.SpawnMaker(id, b)
}

// Request sends a raw request and returns the raw response.
func (m *Manager) Request(ctx context.Context, id string, req Request) (Response, error) {
	return m.pool.Request(ctx, id, req)
}

// call sends req and checks that the reply is of the expected kind.
func (m *Manager) call(ctx context.Context, id string, req Request, want ResponseKind) (Response, error) {
	resp, err := m.pool.Request(ctx, id, req)
	if err != nil {
		return Response{}, err
	}
	if err := resp.Err(); err != nil {
		return Response{}, err
	}
	if resp.Kind != want {
		return Response{}, fmt.Errorf("%w: %s to %s", ErrUnexpectedResponse, resp.Kind, req.Kind)
	}
	return resp, nil
}

func (m *Manager) Ping(ctx context.Context, id string) error {
	_, err := m.call(ctx, id, Request{Kind: ReqPing}, RespPong)
	return err
}

func (m *Manager) GetUTXOs(ctx context.Context, id string) ([]wallet.UTXO, error) {
	resp, err := m.call(ctx, id, Request{Kind: ReqUtxo}, RespUtxo)
	return resp.UTXOs, err
}

func (m *Manager) GetSwapUTXOs(ctx context.Context, id string) ([]wallet.UTXO, error) {
	resp, err := m.call(ctx, id, Request{Kind: ReqSwapUtxo}, RespSwapUtxo)
	return resp.UTXOs, err
}

func (m *Manager) GetContractUTXOs(ctx context.Context, id string) ([]wallet.UTXO, error) {
	resp, err := m.call(ctx, id, Request{Kind: ReqContractUtxo}, RespContractUtxo)
	return resp.UTXOs, err
}

func (m *Manager) GetFidelityUTXOs(ctx context.Context, id string) ([]wallet.UTXO, error) {
	resp, err := m.call(ctx, id, Request{Kind: ReqFidelityUtxo}, RespFidelityUtxo)
	return resp.UTXOs, err
}

func (m *Manager) GetBalances(ctx context.Context, id string) (wallet.Balances, error) {
	resp, err := m.call(ctx, id, Request{Kind: ReqBalances}, RespTotalBalance)
	return resp.Balances, err
}

func (m *Manager) GetNewAddress(ctx context.Context, id string) (string, error) {
	resp, err := m.call(ctx, id, Request{Kind: ReqNewAddress}, RespNewAddress)
	return resp.Text, err
}

// SendToAddress pays amount sats to address and returns the txid.
func (m *Manager) SendToAddress(ctx context.Context, id, address string, amount int64, feeRate float64) (string, error) {
	resp, err := m.call(ctx, id, SendToAddress(address, amount, feeRate), RespSendToAddress)
	return resp.Text, err
}

func (m *Manager) GetTorAddress(ctx context.Context, id string) (string, error) {
	resp, err := m.call(ctx, id, Request{Kind: ReqGetTorAddress}, RespGetTorAddress)
	return resp.Text, err
}

func (m *Manager) GetDataDir(ctx context.Context, id string) (string, error) {
	resp, err := m.call(ctx, id, Request{Kind: ReqGetDataDir}, RespGetDataDir)
	return resp.Text, err
}

// ListFidelity returns the fidelity bonds as JSON text.
func (m *Manager) ListFidelity(ctx context.Context, id string) (string, error) {
	resp, err := m.call(ctx, id, Request{Kind: ReqListFidelity}, RespListBonds)
	return resp.Text, err
}

func (m *Manager) SyncWallet(ctx context.Context, id string) error {
	_, err := m.call(ctx, id, Request{Kind: ReqSyncWallet}, RespPong)
	return err
}

// StopMaker asks the maker to shut down, then removes it and waits for its
// goroutine to exit.
func (m *Manager) StopMaker(ctx context.Context, id string) error {
	_, err := m.call(ctx, id, Request{Kind: ReqStop}, RespShutdown)
	done, ok := m.pool.RemoveMaker(id)
	if !ok {
		return err
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	m.logger.Info("maker removed", zap.String("maker_id", id))
	return err
}

// RemoveMaker drops the maker without a Stop round trip and waits for it.
func (m *Manager) RemoveMaker(id string) bool {
	done, ok := m.pool.RemoveMaker(id)
	if ok {
		<-done
	}
	return ok
}

func (m *Manager) HasMaker(id string) bool  { return m.pool.Contains(id) }
func (m *Manager) MakerCount() int          { return m.pool.Len() }
func (m *Manager) ListMakers() []string     { return m.pool.ListMakers() }
func (m *Manager) IsRunning(id string) bool { return m.pool.Running(id) }

// StartedAt reports when the maker was spawned.
func (m *Manager) StartedAt(id string) (time.Time, bool) { return m.pool.StartedAt(id) }

// PingAll pings every maker in parallel and returns each result by ID. A nil
// value means the maker answered.
func (m *Manager) PingAll(ctx context.Context) map[string]error {
	ids := m.pool.ListMakers()
	results := make(map[string]error, len(ids))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pingConcurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			err := m.Ping(gctx, id)
			mu.Lock()
			results[id] = err
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Close stops every maker.
func (m *Manager) Close() {
	m.pool.Close()
}
