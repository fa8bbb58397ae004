// Package maker runs maker instances behind a request/response channel and
// manages a pool of them.
package maker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/harrylevesque/makerdash/internal/bitcoind"
	"github.com/harrylevesque/makerdash/internal/crypto"
	"github.com/harrylevesque/makerdash/internal/files"
	"github.com/harrylevesque/makerdash/internal/utils"
	"github.com/harrylevesque/makerdash/internal/wallet"
)

const (
	DefaultRPC        = "127.0.0.1:38332"
	DefaultZMQ        = "tcp://127.0.0.1:28332"
	DefaultNetwork    = "signet"
	DefaultWalletName = "maker-wallet"
)

var ErrTorUnavailable = errors.New("tor address not available")

// Auth holds Bitcoin Core RPC credentials.
type Auth struct {
	User     string
	Password string
}

// Config describes a maker to create. Auth has no default; callers must
// supply it.
type Config struct {
	DataDir    string // defaults to ~/.coinswap/maker
	RPC        string
	ZMQ        string
	Auth       *Auth
	TorAuth    string
	WalletName string
	Taproot    bool
	Password   string // wallet file password
	Network    string
}

// DefaultConfig returns a Config with every defaultable field set.
func DefaultConfig() Config {
	return Config{
		DataDir: utils.GetMakerDataDir(),
		RPC:     DefaultRPC,
		ZMQ:     DefaultZMQ,
		Network: DefaultNetwork,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.RPC == "" {
		c.RPC = d.RPC
	}
	if c.ZMQ == "" {
		c.ZMQ = d.ZMQ
	}
	if c.Network == "" {
		c.Network = d.Network
	}
	if c.WalletName == "" {
		c.WalletName = DefaultWalletName
	}
	return c
}

// WalletStore loads and saves wallet snapshots.
type WalletStore interface {
	LoadWallet(name string) (wallet.Snapshot, bool, error)
	SaveWallet(s wallet.Snapshot) error
}

// Backend is what the serving loop needs from a maker.
type Backend interface {
	DefaultAddressType() wallet.AddressType
	DataDir() string
	TorAddress() (string, error)
	// ReadWallet and WriteWallet run fn under the wallet read or write lock.
	ReadWallet(fn func(*wallet.Wallet) error) error
	WriteWallet(fn func(*wallet.Wallet) error) error
}

// Maker is a maker instance with its wallet.
type Maker struct {
	mu       sync.RWMutex
	wallet   *wallet.Wallet
	dataDir  string
	addrType wallet.AddressType
	cfg      Config
}

type options struct {
	chain      wallet.ChainSource
	chainSet   bool
	store      WalletStore
	seed       []byte
	rpcTimeout time.Duration
	logger     *zap.Logger
}

// Option customises Init.
type Option func(*options)

// WithChain overrides the chain source. A nil source runs the maker offline.
func WithChain(c wallet.ChainSource) Option {
	return func(o *options) { o.chain, o.chainSet = c, true }
}

// WithWalletStore overrides the on-disk wallet store.
func WithWalletStore(s WalletStore) Option {
	return func(o *options) { o.store = s }
}

// WithSeed fixes the seed used when a new wallet is created.
func WithSeed(seed []byte) Option {
	return func(o *options) { o.seed = seed }
}

// WithRPCTimeout sets the Bitcoin Core RPC timeout.
func WithRPCTimeout(d time.Duration) Option {
	return func(o *options) { o.rpcTimeout = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Init prepares the data directory and opens the maker wallet, creating it
// with a fresh seed when none exists yet.
func Init(cfg Config, opts ...Option) (*Maker, error) {
	cfg = cfg.withDefaults()
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	dataDir := utils.ExpandHome(cfg.DataDir)
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	params, err := wallet.ParamsForNetwork(cfg.Network)
	if err != nil {
		return nil, err
	}

	store := o.store
	if store == nil {
		store = files.NewWalletStore(filepath.Join(dataDir, "wallets"), cfg.Password)
	}

	var w *wallet.Wallet
	snap, ok, err := store.LoadWallet(cfg.WalletName)
	switch {
	case err != nil:
		return nil, fmt.Errorf("load wallet: %w", err)
	case ok:
		if w, err = wallet.FromSnapshot(snap); err != nil {
			return nil, fmt.Errorf("restore wallet: %w", err)
		}
		if w.Params().Name != params.Name {
			return nil, fmt.Errorf("wallet %s is for %s, maker is configured for %s",
				cfg.WalletName, w.Params().Name, params.Name)
		}
	default:
		seed := o.seed
		if seed == nil {
			seed = crypto.MustRandom(32)
		}
		if w, err = wallet.New(cfg.WalletName, params, seed); err != nil {
			return nil, err
		}
		if err := store.SaveWallet(w.Snapshot()); err != nil {
			return nil, fmt.Errorf("save new wallet: %w", err)
		}
		o.logger.Info("created maker wallet", zap.String("wallet", cfg.WalletName), zap.String("data_dir", dataDir))
	}

	chain := o.chain
	if !o.chainSet && cfg.Auth != nil {
		chain = bitcoind.NewClient(cfg.RPC, cfg.Auth.User, cfg.Auth.Password, o.rpcTimeout)
	}
	if chain != nil {
		w.SetChain(chain)
	}
	w.SetPersister(store)

	addrType := wallet.P2WPKH
	if cfg.Taproot {
		addrType = wallet.P2TR
	}
	cfg.DataDir = dataDir
	return &Maker{wallet: w, dataDir: dataDir, addrType: addrType, cfg: cfg}, nil
}

func (m *Maker) DefaultAddressType() wallet.AddressType { return m.addrType }
func (m *Maker) DataDir() string                        { return m.dataDir }
func (m *Maker) Config() Config                         { return m.cfg }

func (m *Maker) ReadWallet(fn func(*wallet.Wallet) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(m.wallet)
}

func (m *Maker) WriteWallet(fn func(*wallet.Wallet) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.wallet)
}

// TorAddress returns the onion hostname written by the Tor daemon under the
// data dir, joined with the maker network port from config.toml.
func (m *Maker) TorAddress() (string, error) {
	raw, err := os.ReadFile(filepath.Join(m.dataDir, "tor", "hostname"))
	if err != nil {
		return "", ErrTorUnavailable
	}
	host := strings.TrimSpace(string(raw))
	if host == "" {
		return "", ErrTorUnavailable
	}
	fileCfg, err := files.LoadMakerConfig(m.dataDir)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", host, fileCfg.NetworkPort), nil
}
