// Package certs manages the dashboard's TLS key pair.
package certs

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrExpired     = errors.New("certificate has expired")
	ErrNotYetValid = errors.New("certificate is not yet valid")
)

// Manager holds the current certificate and swaps it on Reload, so a renewed
// pair is picked up without restarting the listener.
type Manager struct {
	certFile string
	keyFile  string
	logger   *zap.Logger

	mu   sync.RWMutex
	cert *tls.Certificate
	leaf *x509.Certificate

	now func() time.Time
}

// NewManager loads the pair at certFile/keyFile. It fails when the files do
// not match or the leaf certificate is outside its validity window.
func NewManager(certFile, keyFile string, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{certFile: certFile, keyFile: keyFile, logger: logger, now: time.Now}
	if err := m.Reload(); err != nil {
		return nil, err
	}
	return m, nil
}

// Reload re-reads the key pair. On error the previous certificate stays in use.
func (m *Manager) Reload() error {
	pair, err := tls.LoadX509KeyPair(m.certFile, m.keyFile)
	if err != nil {
		return fmt.Errorf("load key pair: %w", err)
	}
	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return fmt.Errorf("parse certificate: %w", err)
	}
	if err := m.checkValidity(leaf); err != nil {
		return err
	}
	pair.Leaf = leaf

	m.mu.Lock()
	m.cert = &pair
	m.leaf = leaf
	m.mu.Unlock()

	m.logger.Info("tls certificate loaded",
		zap.String("subject", leaf.Subject.CommonName),
		zap.Time("not_after", leaf.NotAfter))
	return nil
}

func (m *Manager) checkValidity(leaf *x509.Certificate) error {
	now := m.now()
	if now.After(leaf.NotAfter) {
		return fmt.Errorf("%w: %s expired %s", ErrExpired, m.certFile, leaf.NotAfter.Format(time.RFC3339))
	}
	if now.Before(leaf.NotBefore) {
		return fmt.Errorf("%w: %s valid from %s", ErrNotYetValid, m.certFile, leaf.NotBefore.Format(time.RFC3339))
	}
	return nil
}

// ExpiresIn returns the time left on the current certificate.
func (m *Manager) ExpiresIn() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.leaf.NotAfter.Sub(m.now())
}

// GetCertificate implements tls.Config.GetCertificate.
func (m *Manager) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cert, nil
}

// TLSConfig returns a server config that always serves the current pair.
func (m *Manager) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: m.GetCertificate,
	}
}
