package bitcoind

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/harrylevesque/makerdash/internal/models"
)

// TestConnection queries the node and reports what the settings page shows.
// Any failure yields the disconnected placeholders with the reason attached.
func (c *Client) TestConnection(ctx context.Context) models.BitcoinStatus {
	network, err := c.GetNetworkInfo(ctx)
	if err != nil {
		return models.DisconnectedStatus(err)
	}
	chain, err := c.GetBlockchainInfo(ctx)
	if err != nil {
		return models.DisconnectedStatus(err)
	}
	return models.BitcoinStatus{
		Connected:    true,
		Version:      network.Subversion,
		Network:      chain.Chain,
		BlockHeight:  strconv.FormatInt(chain.Blocks, 10),
		SyncProgress: fmt.Sprintf("%.1f%%", chain.VerificationProgress*100),
	}
}

// ZMQConfig renders the bitcoin.conf lines for the raw block and raw tx
// notifications on endpoint.
func ZMQConfig(endpoint string) string {
	return fmt.Sprintf("zmqpubrawblock=%s\nzmqpubrawtx=%s", endpoint, endpoint)
}

// ValidateZMQEndpoint requires a tcp://host:port endpoint.
func ValidateZMQEndpoint(endpoint string) error {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return fmt.Errorf("invalid zmq endpoint: %w", err)
	}
	if u.Scheme != "tcp" {
		return fmt.Errorf("zmq endpoint must start with tcp://")
	}
	if u.Path != "" && u.Path != "/" {
		return fmt.Errorf("zmq endpoint must be tcp://host:port")
	}
	return validatePort(u.Host)
}

// ValidateHostPort checks a host:port RPC address.
func ValidateHostPort(addr string) error {
	return validatePort(strings.TrimSpace(addr))
}

func validatePort(hostport string) error {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		return fmt.Errorf("expected host:port, got %q", hostport)
	}
	if host == "" {
		return fmt.Errorf("missing host in %q", hostport)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid port in %q", hostport)
	}
	return nil
}
