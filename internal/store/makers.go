package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/harrylevesque/makerdash/internal/crypto"
	"github.com/harrylevesque/makerdash/internal/models"
	"github.com/harrylevesque/makerdash/internal/utils"
)

var ErrNotFound = errors.New("record not found")

func init() {
	utils.RegisterStatus(ErrNotFound, http.StatusNotFound)
}

// MakerRepo handles the maker registry.
type MakerRepo struct {
	db  *sql.DB
	key []byte
}

func NewMakerRepo(db *sql.DB, key []byte) *MakerRepo {
	return &MakerRepo{db: db, key: key}
}

const makerColumns = `id, name, rpc_port, data_dir, bitcoin_rpc, bitcoin_user, bitcoin_password,
	zmq, taproot, network, wallet_name, wallet_password, tor_auth, demo, created_at, updated_at`

// Upsert inserts or updates m. CreatedAt is kept on update.
func (r *MakerRepo) Upsert(ctx context.Context, m models.Maker) error {
	rpcPass, err := crypto.SealString(r.key, m.BitcoinPassword)
	if err != nil {
		return fmt.Errorf("seal rpc password: %w", err)
	}
	walletPass, err := crypto.SealString(r.key, m.WalletPassword)
	if err != nil {
		return fmt.Errorf("seal wallet password: %w", err)
	}
	torAuth, err := crypto.SealString(r.key, m.TorAuth)
	if err != nil {
		return fmt.Errorf("seal tor auth: %w", err)
	}
	ts := now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = ts
	}
	_, err = r.db.ExecContext(ctx, `
	INSERT INTO makers(`+makerColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
	 name=excluded.name,
	 rpc_port=excluded.rpc_port,
	 data_dir=excluded.data_dir,
	 bitcoin_rpc=excluded.bitcoin_rpc,
	 bitcoin_user=excluded.bitcoin_user,
	 bitcoin_password=excluded.bitcoin_password,
	 zmq=excluded.zmq,
	 taproot=excluded.taproot,
	 network=excluded.network,
	 wallet_name=excluded.wallet_name,
	 wallet_password=excluded.wallet_password,
	 tor_auth=excluded.tor_auth,
	 demo=excluded.demo,
	 updated_at=excluded.updated_at;
	`, m.ID, m.Name, m.RPCPort, m.DataDir, m.BitcoinRPC, m.BitcoinUser, rpcPass,
		m.ZMQ, m.Taproot, m.Network, m.WalletName, walletPass, torAuth, m.Demo, m.CreatedAt.UTC(), ts)
	return err
}

// SealPlaintext re-seals secrets that were stored while no key was
// configured. It returns the number of makers rewritten.
func (r *MakerRepo) SealPlaintext(ctx context.Context) (int, error) {
	if r.key == nil {
		return 0, nil
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id, bitcoin_password, wallet_password, tor_auth FROM makers`)
	if err != nil {
		return 0, err
	}
	var ids []string
	for rows.Next() {
		var id, rpcPass, walletPass, torAuth string
		if err := rows.Scan(&id, &rpcPass, &walletPass, &torAuth); err != nil {
			rows.Close()
			return 0, err
		}
		for _, v := range []string{rpcPass, walletPass, torAuth} {
			if v != "" && !crypto.IsSealed(v) {
				ids = append(ids, id)
				break
			}
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	for _, id := range ids {
		m, err := r.Get(ctx, id)
		if err != nil {
			return 0, err
		}
		if err := r.Upsert(ctx, m); err != nil {
			return 0, fmt.Errorf("seal secrets for %s: %w", id, err)
		}
	}
	return len(ids), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *MakerRepo) scan(s scanner) (models.Maker, error) {
	var m models.Maker
	err := s.Scan(&m.ID, &m.Name, &m.RPCPort, &m.DataDir, &m.BitcoinRPC, &m.BitcoinUser, &m.BitcoinPassword,
		&m.ZMQ, &m.Taproot, &m.Network, &m.WalletName, &m.WalletPassword, &m.TorAuth, &m.Demo, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return m, err
	}
	if m.BitcoinPassword, err = crypto.OpenString(r.key, m.BitcoinPassword); err != nil {
		return m, fmt.Errorf("open rpc password for %s: %w", m.ID, err)
	}
	if m.WalletPassword, err = crypto.OpenString(r.key, m.WalletPassword); err != nil {
		return m, fmt.Errorf("open wallet password for %s: %w", m.ID, err)
	}
	if m.TorAuth, err = crypto.OpenString(r.key, m.TorAuth); err != nil {
		return m, fmt.Errorf("open tor auth for %s: %w", m.ID, err)
	}
	return m, nil
}

func (r *MakerRepo) Get(ctx context.Context, id string) (models.Maker, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+makerColumns+` FROM makers WHERE id = ?`, id)
	m, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return m, fmt.Errorf("maker %s: %w", id, ErrNotFound)
	}
	return m, err
}

// List returns every maker in creation order.
func (r *MakerRepo) List(ctx context.Context) ([]models.Maker, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+makerColumns+` FROM makers ORDER BY created_at, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Maker
	for rows.Next() {
		m, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MakerRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM makers WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("maker %s: %w", id, ErrNotFound)
	}
	return nil
}

// PortInUse reports whether another maker than exceptID uses port.
func (r *MakerRepo) PortInUse(ctx context.Context, port int, exceptID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM makers WHERE rpc_port = ? AND id != ?`, port, exceptID).Scan(&n)
	return n > 0, err
}

func (r *MakerRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM makers`).Scan(&n)
	return n, err
}
