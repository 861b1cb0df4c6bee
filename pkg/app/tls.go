package app

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"sync"
	"time"
)

const (
	// certificateLifetime is the validity of every issued certificate.
	certificateLifetime = 30 * 24 * time.Hour
	// renewBefore is how long before expiry a certificate is replaced.
	renewBefore = 72 * time.Hour
)

// selfSignedIssuer serves an in-memory certificate for one domain and replaces it before it
// expires. Nothing touches the disk.
type selfSignedIssuer struct {
	domain string
	now    func() time.Time

	mu      sync.Mutex
	current *tls.Certificate
}

func newSelfSignedIssuer(domain string) *selfSignedIssuer {
	return &selfSignedIssuer{domain: domain, now: time.Now}
}

// TLSConfig hands certificates out per handshake, so a long-running server picks up renewals.
func (i *selfSignedIssuer) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			return i.certificate()
		},
	}
}

func (i *selfSignedIssuer) certificate() (*tls.Certificate, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := i.now()
	if i.current != nil && now.Before(i.current.Leaf.NotAfter.Add(-renewBefore)) {
		return i.current, nil
	}
	cert, err := issueCertificate(i.domain, now)
	if err != nil {
		return nil, fmt.Errorf("issue certificate for %s: %w", i.domain, err)
	}
	i.current = cert
	return cert, nil
}

func issueCertificate(domain string, now time.Time) (*tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: domain, Organization: []string{"carecart"}},
		DNSNames:     []string{domain},
		NotBefore:    now.Add(-5 * time.Minute),
		NotAfter:     now.Add(certificateLifetime),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	return &tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}, nil
}
