package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harrylevesque/makerdash/internal/bitcoind"
	"github.com/harrylevesque/makerdash/internal/files"
	"github.com/harrylevesque/makerdash/internal/maker"
	"github.com/harrylevesque/makerdash/internal/models"
	"github.com/harrylevesque/makerdash/internal/utils"
	"github.com/harrylevesque/makerdash/internal/wallet"
)

// makerIDPrefix marks maker IDs, e.g. "mk--6f1c...".
const makerIDPrefix = "mk--"

const maxNameLen = 64

// NewMakerID returns a fresh maker ID.
func NewMakerID() string {
	return makerIDPrefix + uuid.NewString()
}

// ListMakers returns a summary of every registered maker in creation order.
func (s *Service) ListMakers(ctx context.Context) ([]models.MakerSummary, error) {
	recs, err := s.store.Makers.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.MakerSummary, len(recs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(summaryConcurrency)
	for i, rec := range recs {
		i, rec := i, rec
		g.Go(func() error {
			sum, _ := s.summary(gctx, rec)
			out[i] = sum
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}

// summary builds the list row for rec and returns the balances it read so
// GetMaker does not ask twice.
func (s *Service) summary(ctx context.Context, rec models.Maker) (models.MakerSummary, wallet.Balances) {
	sum := models.MakerSummary{
		ID:         rec.ID,
		Name:       rec.Name,
		Port:       rec.RPCPort,
		Status:     models.StatusOffline,
		Balance:    formatBTC(0, 2),
		Earnings:   formatBTC(0, 4),
		Uptime:     placeholder,
		DataDir:    rec.DataDir,
		BitcoinRPC: rec.BitcoinRPC,
		TorAddress: placeholder,
		Taproot:    rec.Taproot,
		Network:    rec.Network,
	}

	if active, earnings, err := s.store.Swaps.Stats(ctx, rec.ID); err == nil {
		sum.ActiveSwaps = active
		sum.EarningsSats = earnings
		sum.Earnings = formatBTC(earnings, 4)
	}

	if !s.manager.IsRunning(rec.ID) {
		return sum, wallet.Balances{}
	}
	sum.Status = models.StatusOnline
	if started, ok := s.manager.StartedAt(rec.ID); ok {
		sum.Uptime = formatUptime(s.now().Sub(started))
	}

	cctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	bal, err := s.manager.GetBalances(cctx, rec.ID)
	if err != nil {
		sum.Status = models.StatusError
		sum.Error = err.Error()
		return sum, wallet.Balances{}
	}
	sum.BalanceSats = bal.Total()
	sum.Balance = formatBTC(bal.Total(), 2)

	if tor, err := s.manager.GetTorAddress(cctx, rec.ID); err == nil {
		sum.TorAddress = tor
	}
	if herr := s.healthOf(rec.ID); herr != nil {
		sum.Status = models.StatusError
		sum.Error = herr.Error()
	}
	return sum, bal
}

// GetMaker returns the maker details page.
func (s *Service) GetMaker(ctx context.Context, id string) (models.MakerDetail, error) {
	rec, err := s.store.Makers.Get(ctx, id)
	if err != nil {
		return models.MakerDetail{}, err
	}
	sum, bal := s.summary(ctx, rec)
	swaps, err := s.store.Swaps.ForMaker(ctx, id, 20)
	if err != nil {
		return models.MakerDetail{}, err
	}
	return models.MakerDetail{
		MakerSummary: sum,
		Balances:     breakdown(bal),
		Config:       configView(rec),
		Swaps:        swaps,
	}, nil
}

func breakdown(b wallet.Balances) models.BalanceBreakdown {
	var out models.BalanceBreakdown
	out.Regular = formatBTC(b.Regular, 8)
	out.Swap = formatBTC(b.Swap, 8)
	out.Contract = formatBTC(b.Contract, 8)
	out.Fidelity = formatBTC(b.Fidelity, 8)
	out.Spendable = formatBTC(b.Spendable, 8)
	out.Sats.Regular = b.Regular
	out.Sats.Swap = b.Swap
	out.Sats.Contract = b.Contract
	out.Sats.Fidelity = b.Fidelity
	out.Sats.Spendable = b.Spendable
	return out
}

func configView(rec models.Maker) models.MakerConfigView {
	return models.MakerConfigView{
		BitcoinRPC:         rec.BitcoinRPC,
		BitcoinUser:        rec.BitcoinUser,
		BitcoinPasswordSet: rec.BitcoinPassword != "",
		ZMQ:                rec.ZMQ,
		Network:            rec.Network,
		WalletName:         rec.WalletName,
		WalletPasswordSet:  rec.WalletPassword != "",
		TorAuthSet:         rec.TorAuth != "",
		Taproot:            rec.Taproot,
	}
}

// validateAddMaker normalises req and checks every field of the form.
func (s *Service) validateAddMaker(ctx context.Context, req *models.AddMakerRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	req.BitcoinRPC = strings.TrimSpace(req.BitcoinRPC)
	req.BitcoinUser = strings.TrimSpace(req.BitcoinUser)
	req.ZMQ = strings.TrimSpace(req.ZMQ)
	req.DataDir = strings.TrimSpace(req.DataDir)

	if req.Name == "" {
		return utils.BadRequest("name is required")
	}
	if len(req.Name) > maxNameLen {
		return utils.BadRequest("name must be at most %d characters", maxNameLen)
	}
	if req.RPCPort < 1 || req.RPCPort > 65535 {
		return utils.BadRequest("rpcPort must be between 1 and 65535")
	}
	if req.DataDir == "" {
		return utils.BadRequest("dataDir is required")
	}
	if req.BitcoinRPC == "" {
		req.BitcoinRPC = maker.DefaultRPC
	}
	if err := bitcoind.ValidateHostPort(req.BitcoinRPC); err != nil {
		return utils.BadRequest("bitcoinRpc: %v", err)
	}
	if req.BitcoinUser == "" || req.BitcoinPassword == "" {
		return utils.BadRequest("bitcoinUser and bitcoinPassword are required")
	}
	if req.ZMQ == "" {
		req.ZMQ = maker.DefaultZMQ
	}
	if err := bitcoind.ValidateZMQEndpoint(req.ZMQ); err != nil {
		return utils.BadRequest("zmq: %v", err)
	}
	if req.Network == "" {
		settings, err := s.settings.Load()
		if err != nil {
			return err
		}
		req.Network = settings.Network
	}
	if _, err := wallet.ParamsForNetwork(req.Network); err != nil {
		return utils.BadRequest("network: %v", err)
	}
	if req.WalletName == "" {
		req.WalletName = maker.DefaultWalletName
	}

	inUse, err := s.store.Makers.PortInUse(ctx, req.RPCPort, "")
	if err != nil {
		return err
	}
	if inUse {
		return fmt.Errorf("%w: %d", ErrPortInUse, req.RPCPort)
	}
	dataDir := filepath.Clean(utils.ExpandHome(req.DataDir))
	recs, err := s.store.Makers.List(ctx)
	if err != nil {
		return err
	}
	for _, r := range recs {
		if filepath.Clean(r.DataDir) == dataDir {
			return utils.BadRequest("dataDir %s is already used by %s", req.DataDir, r.Name)
		}
	}
	req.DataDir = dataDir
	return nil
}

// AddMaker registers a maker, writes its config.toml and starts it. When the
// maker cannot start the registration is rolled back.
func (s *Service) AddMaker(ctx context.Context, req models.AddMakerRequest) (models.MakerSummary, error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if err := s.validateAddMaker(ctx, &req); err != nil {
		return models.MakerSummary{}, err
	}
	rec := models.Maker{
		ID:              NewMakerID(),
		Name:            req.Name,
		RPCPort:         req.RPCPort,
		DataDir:         req.DataDir,
		BitcoinRPC:      req.BitcoinRPC,
		BitcoinUser:     req.BitcoinUser,
		BitcoinPassword: req.BitcoinPassword,
		ZMQ:             req.ZMQ,
		Taproot:         req.Taproot,
		Network:         req.Network,
		WalletName:      req.WalletName,
		WalletPassword:  req.WalletPassword,
		TorAuth:         req.TorAuth,
	}
	if err := s.store.Makers.Upsert(ctx, rec); err != nil {
		return models.MakerSummary{}, fmt.Errorf("save maker: %w", err)
	}

	if err := s.writeDefaultMakerConfig(rec); err != nil {
		s.rollbackAdd(ctx, rec.ID)
		return models.MakerSummary{}, err
	}
	if err := s.startMaker(rec); err != nil {
		s.rollbackAdd(ctx, rec.ID)
		return models.MakerSummary{}, utils.Wrap(http.StatusUnprocessableEntity, "could not start maker", err)
	}

	s.logger.Info("maker added", zap.String("maker_id", rec.ID), zap.String("name", rec.Name))
	s.recordMaker(ctx, rec, models.ActivityMakerStarted, fmt.Sprintf("Port %d", rec.RPCPort), "success")
	sum, _ := s.summary(ctx, rec)
	return sum, nil
}

func (s *Service) rollbackAdd(ctx context.Context, id string) {
	if err := s.store.Makers.Delete(context.WithoutCancel(ctx), id); err != nil {
		s.logger.Warn("roll back maker registration", zap.String("maker_id", id), zap.Error(err))
	}
}

// writeDefaultMakerConfig creates config.toml with the maker's RPC port
// unless one already exists.
func (s *Service) writeDefaultMakerConfig(rec models.Maker) error {
	cfg, err := files.LoadMakerConfig(rec.DataDir)
	if err != nil {
		return err
	}
	if files.FileExists(filepath.Join(rec.DataDir, "config.toml")) && cfg.RPCPort == rec.RPCPort {
		return nil
	}
	cfg.RPCPort = rec.RPCPort
	return files.SaveMakerConfig(rec.DataDir, cfg)
}

func makerConfig(rec models.Maker) maker.Config {
	return maker.Config{
		DataDir:    rec.DataDir,
		RPC:        rec.BitcoinRPC,
		ZMQ:        rec.ZMQ,
		Auth:       &maker.Auth{User: rec.BitcoinUser, Password: rec.BitcoinPassword},
		TorAuth:    rec.TorAuth,
		WalletName: rec.WalletName,
		Taproot:    rec.Taproot,
		Password:   rec.WalletPassword,
		Network:    rec.Network,
	}
}

// startMaker initialises rec and adds it to the pool. Demo makers run
// without a chain source.
func (s *Service) startMaker(rec models.Maker) error {
	opts := append([]maker.Option{maker.WithRPCTimeout(s.cfg.RPCTimeout), maker.WithLogger(s.logger)}, s.cfg.MakerOptions...)
	if rec.Demo {
		mk, err := maker.Init(makerConfig(rec), append(opts, maker.WithChain(nil))...)
		if err != nil {
			return err
		}
		return s.manager.SpawnExistingMaker(rec.ID, mk)
	}
	return s.manager.CreateMaker(rec.ID, makerConfig(rec), opts...)
}

// StartMaker starts a registered maker.
func (s *Service) StartMaker(ctx context.Context, id string) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.startLocked(ctx, id)
}

func (s *Service) startLocked(ctx context.Context, id string) error {
	rec, err := s.store.Makers.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.manager.HasMaker(id) {
		return fmt.Errorf("%w: %s is already running", maker.ErrMakerExists, rec.Name)
	}
	if err := s.startMaker(rec); err != nil {
		s.recordMaker(ctx, rec, models.ActivityMakerError, err.Error(), "error")
		return utils.Wrap(http.StatusUnprocessableEntity, "could not start maker", err)
	}
	s.clearHealth(id)
	s.recordMaker(ctx, rec, models.ActivityMakerStarted, fmt.Sprintf("Port %d", rec.RPCPort), "success")
	return nil
}

// StopMaker stops a running maker.
func (s *Service) StopMaker(ctx context.Context, id string) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.stopLocked(ctx, id)
}

func (s *Service) stopLocked(ctx context.Context, id string) error {
	rec, err := s.store.Makers.Get(ctx, id)
	if err != nil {
		return err
	}
	if !s.manager.HasMaker(id) {
		return fmt.Errorf("%w: %s", ErrNotRunning, rec.Name)
	}
	if err := s.manager.StopMaker(ctx, id); err != nil {
		// The maker is out of the pool either way; a failed Shutdown reply
		// only means it had already stopped serving.
		s.logger.Warn("stop maker", zap.String("maker_id", id), zap.Error(err))
	}
	s.clearHealth(id)
	s.recordMaker(ctx, rec, models.ActivityMakerStopped, fmt.Sprintf("Port %d", rec.RPCPort), "")
	return nil
}

// RestartMaker stops the maker when it runs and starts it again.
func (s *Service) RestartMaker(ctx context.Context, id string) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.restartLocked(ctx, id)
}

func (s *Service) restartLocked(ctx context.Context, id string) error {
	if s.manager.HasMaker(id) {
		if err := s.stopLocked(ctx, id); err != nil {
			return err
		}
	}
	return s.startLocked(ctx, id)
}

// RemoveMaker stops the maker and deletes it from the registry. Its data dir
// and wallet stay on disk.
func (s *Service) RemoveMaker(ctx context.Context, id string) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	rec, err := s.store.Makers.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.manager.HasMaker(id) {
		if err := s.manager.StopMaker(ctx, id); err != nil {
			s.logger.Warn("stop maker before removal", zap.String("maker_id", id), zap.Error(err))
		}
	}
	if err := s.store.Makers.Delete(ctx, id); err != nil {
		return err
	}
	s.clearHealth(id)
	s.logger.Info("maker removed", zap.String("maker_id", id), zap.String("name", rec.Name))
	s.recordMaker(ctx, rec, models.ActivityMakerRemoved, rec.DataDir, "")
	return nil
}

// MakerConfig reads the maker's config.toml.
func (s *Service) MakerConfig(ctx context.Context, id string) (files.MakerFileConfig, error) {
	rec, err := s.store.Makers.Get(ctx, id)
	if err != nil {
		return files.MakerFileConfig{}, err
	}
	return files.LoadMakerConfig(rec.DataDir)
}

// SaveMakerConfig writes config.toml and restarts the maker if it runs. A new
// rpc_port is mirrored into the registry.
func (s *Service) SaveMakerConfig(ctx context.Context, id string, cfg files.MakerFileConfig) (files.MakerFileConfig, error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if err := cfg.Validate(); err != nil {
		return cfg, utils.BadRequest("%v", err)
	}
	rec, err := s.store.Makers.Get(ctx, id)
	if err != nil {
		return cfg, err
	}
	if cfg.RPCPort != rec.RPCPort {
		inUse, err := s.store.Makers.PortInUse(ctx, cfg.RPCPort, id)
		if err != nil {
			return cfg, err
		}
		if inUse {
			return cfg, fmt.Errorf("%w: %d", ErrPortInUse, cfg.RPCPort)
		}
		rec.RPCPort = cfg.RPCPort
		if err := s.store.Makers.Upsert(ctx, rec); err != nil {
			return cfg, err
		}
	}
	if err := files.SaveMakerConfig(rec.DataDir, cfg); err != nil {
		return cfg, err
	}
	s.recordMaker(ctx, rec, models.ActivityConfigSaved, "config.toml updated", "")

	if s.manager.HasMaker(id) {
		if err := s.restartLocked(ctx, id); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// Restore starts every registered maker. A maker that fails to start is
// logged and left offline. It returns how many makers started.
func (s *Service) Restore(ctx context.Context) (int, error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	recs, err := s.store.Makers.List(ctx)
	if err != nil {
		return 0, err
	}
	started := 0
	for _, rec := range recs {
		if s.manager.HasMaker(rec.ID) {
			continue
		}
		if err := s.startMaker(rec); err != nil {
			s.logger.Warn("restore maker", zap.String("maker_id", rec.ID), zap.String("name", rec.Name), zap.Error(err))
			continue
		}
		started++
	}
	s.logger.Info("makers restored", zap.Int("started", started), zap.Int("registered", len(recs)))
	return started, nil
}

// running returns the registry record of a maker that is in the pool.
func (s *Service) running(ctx context.Context, id string) (models.Maker, error) {
	rec, err := s.store.Makers.Get(ctx, id)
	if err != nil {
		return rec, err
	}
	if !s.manager.HasMaker(id) {
		return rec, fmt.Errorf("%w: %s", ErrNotRunning, rec.Name)
	}
	return rec, nil
}

// Ping checks that the maker answers.
func (s *Service) Ping(ctx context.Context, id string) error {
	if _, err := s.running(ctx, id); err != nil {
		return err
	}
	err := s.manager.Ping(ctx, id)
	s.RecordHealth(map[string]error{id: err})
	return err
}
