package dashboard

import (
	"context"
	"net"
	"strconv"
	"strings"

	"github.com/harrylevesque/makerdash/internal/bitcoind"
	"github.com/harrylevesque/makerdash/internal/models"
	"github.com/harrylevesque/makerdash/internal/utils"
	"github.com/harrylevesque/makerdash/internal/wallet"
)

// Settings returns the stored settings with secrets masked.
func (s *Service) Settings(ctx context.Context) (models.SettingsView, error) {
	cur, err := s.settings.Load()
	if err != nil {
		return models.SettingsView{}, err
	}
	return cur.View(), nil
}

// SaveSettings validates next and stores it. Blank secrets keep their stored
// values.
func (s *Service) SaveSettings(ctx context.Context, next models.Settings) (models.SettingsView, error) {
	cur, err := s.settings.Load()
	if err != nil {
		return models.SettingsView{}, err
	}
	merged := cur.Merge(next)
	if err := validateSettings(&merged); err != nil {
		return models.SettingsView{}, err
	}
	if err := s.settings.Save(merged); err != nil {
		return models.SettingsView{}, err
	}
	return merged.View(), nil
}

func validateSettings(st *models.Settings) error {
	st.RPCHost = strings.TrimSpace(st.RPCHost)
	st.ZMQEndpoint = strings.TrimSpace(st.ZMQEndpoint)
	if st.RPCHost == "" {
		return utils.BadRequest("rpcHost is required")
	}
	for name, port := range map[string]int{
		"rpcPort":     st.RPCPort,
		"socksPort":   st.SocksPort,
		"controlPort": st.ControlPort,
	} {
		if port < 1 || port > 65535 {
			return utils.BadRequest("%s must be between 1 and 65535", name)
		}
	}
	if err := bitcoind.ValidateZMQEndpoint(st.ZMQEndpoint); err != nil {
		return utils.BadRequest("zmqEndpoint: %v", err)
	}
	if _, err := wallet.ParamsForNetwork(st.Network); err != nil {
		return utils.BadRequest("network: %v", err)
	}
	return nil
}

// TestConnection queries Bitcoin Core with the given settings, or with the
// stored ones when in is nil. A blank password in falls back to the stored
// password.
func (s *Service) TestConnection(ctx context.Context, in *models.Settings) (models.BitcoinStatus, error) {
	cur, err := s.settings.Load()
	if err != nil {
		return models.BitcoinStatus{}, err
	}
	st := cur
	if in != nil {
		st = cur.Merge(*in)
	}
	if strings.TrimSpace(st.RPCHost) == "" || st.RPCPort < 1 || st.RPCPort > 65535 {
		return models.BitcoinStatus{}, utils.BadRequest("rpcHost and rpcPort are required")
	}
	addr := net.JoinHostPort(strings.TrimSpace(st.RPCHost), strconv.Itoa(st.RPCPort))
	client := bitcoind.NewClient(addr, st.RPCUser, st.RPCPassword, s.cfg.RPCTimeout)
	return client.TestConnection(ctx), nil
}

// ZMQConfig returns the bitcoin.conf lines for the stored ZMQ endpoint.
func (s *Service) ZMQConfig(ctx context.Context) (string, error) {
	cur, err := s.settings.Load()
	if err != nil {
		return "", err
	}
	return bitcoind.ZMQConfig(cur.ZMQEndpoint), nil
}
