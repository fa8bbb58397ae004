package wallet

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// AddressType selects the output script the wallet derives.
type AddressType string

const (
	P2WPKH AddressType = "p2wpkh"
	P2TR   AddressType = "p2tr"
)

const (
	branchExternal = "external"
	branchInternal = "internal"
)

// ParamsForNetwork maps a network name to its chain parameters.
func ParamsForNetwork(name string) (*chaincfg.Params, error) {
	switch strings.ToLower(name) {
	case "mainnet", "bitcoin", "main":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3", "test":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet", "":
		return &chaincfg.SigNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q", name)
	}
}

// MustParams is ParamsForNetwork for known-good names.
func MustParams(name string) *chaincfg.Params {
	params, err := ParamsForNetwork(name)
	if err != nil {
		panic(err)
	}
	return params
}

// NextExternalAddress derives the next receive address.
func (w *Wallet) NextExternalAddress(t AddressType) (btcutil.Address, error) {
	addr, err := w.deriveAddress(branchExternal, w.externalIndex, t)
	if err != nil {
		return nil, err
	}
	w.externalIndex++
	return addr, nil
}

func (w *Wallet) deriveAddress(branch string, index uint32, t AddressType) (btcutil.Address, error) {
	program := w.deriveProgram(branch, index)
	switch t {
	case P2WPKH:
		return btcutil.NewAddressWitnessPubKeyHash(program[:20], w.params)
	case P2TR:
		return btcutil.NewAddressTaproot(program, w.params)
	default:
		return nil, fmt.Errorf("unsupported address type %q", t)
	}
}

func (w *Wallet) deriveProgram(branch string, index uint32) []byte {
	mac := hmac.New(sha256.New, w.seed)
	mac.Write([]byte(branch))
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], index)
	mac.Write(idx[:])
	return mac.Sum(nil)
}

// DecodeAddress parses addr and checks that it belongs to the wallet network.
func (w *Wallet) DecodeAddress(addr string) (btcutil.Address, error) {
	return DecodeAddress(addr, w.params)
}

// DecodeAddress parses addr for the given network.
func DecodeAddress(addr string, params *chaincfg.Params) (btcutil.Address, error) {
	decoded, err := btcutil.DecodeAddress(strings.TrimSpace(addr), params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if !decoded.IsForNet(params) {
		return nil, fmt.Errorf("%w: not a %s address", ErrInvalidAddress, params.Name)
	}
	return decoded, nil
}
