// Package certstore mints and caches leaf TLS certificates on the fly so
// this proxy can terminate TLS toward the client for any host it sees a
// ClientHello for, signing each leaf with a locally bootstrapped CA (spec
// §4.C).
package certstore

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultKeySize is the CA RSA modulus size used when bootstrapping a
	// fresh store (original server_store.cpp::default_key_size).
	DefaultKeySize = 2048

	// DefaultExpiry is the CA and leaf certificate validity window: 3 years.
	DefaultExpiry = 3 * 365 * 24 * time.Hour

	caKeyFileName  = "aether-cakey.pem"
	caCertFileName = "aether-cacert.pem"
)

// Identity is the CA's distinguished-name configuration, populated from the
// proxy's properties file (spec §6, ssl-certificate-properties).
type Identity struct {
	CommonName         string
	Country            string
	State              string
	Locality           string
	Organization       string
	OrganizationalUnit string
	DNQualifier        string
	KeySize            int
	Password           string
}

func (id Identity) withDefaults() Identity {
	if id.CommonName == "" {
		id.CommonName = "aether"
	}
	if id.KeySize == 0 {
		id.KeySize = DefaultKeySize
	}
	return id
}

// Store bootstraps or loads a CA keypair and mints/caches leaf certificates
// signed by it. The zero value is not usable; construct with Open.
type Store struct {
	dir string

	caKey  *rsa.PrivateKey
	caCert *x509.Certificate

	dhParamPath string

	cache *certCache
}

// Open loads an existing CA from dir, or bootstraps a new one if the key
// and certificate files are both absent (spec §4.C "Bootstrap"). dhParamPath
// must name an existing PEM file; this proxy has no runtime DH-parameter
// generation path, matching the original's "much too slow to generate this
// in the program itself" constraint.
func Open(dir string, id Identity, dhParamPath string) (*Store, error) {
	id = id.withDefaults()

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("certstore: create store dir: %w", err)
	}

	keyPath := filepath.Join(dir, caKeyFileName)
	certPath := filepath.Join(dir, caCertFileName)

	s := &Store{dir: dir, dhParamPath: dhParamPath, cache: newCertCache(maxNumCerts)}

	keyExists := fileExists(keyPath)
	certExists := fileExists(certPath)

	switch {
	case !keyExists && !certExists:
		if err := s.createStore(keyPath, certPath, id); err != nil {
			return nil, err
		}
	default:
		if err := s.readStore(keyPath, certPath, id.Password); err != nil {
			return nil, err
		}
	}

	if err := s.checkDHParams(); err != nil {
		return nil, err
	}

	return s, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// checkDHParams validates the configured DH parameters file exists and is
// non-empty. Go's crypto/tls has no knob to feed server-side DH parameters
// into a handshake (its cipher suites are all ECDHE or non-DH), so this is a
// presence check preserving the on-disk contract from spec §6 rather than a
// value actually wired into TLS.
func (s *Store) checkDHParams() error {
	if s.dhParamPath == "" {
		return fmt.Errorf("certstore: no dhparam file configured")
	}
	data, err := os.ReadFile(s.dhParamPath)
	if err != nil {
		return fmt.Errorf("certstore: dhparam file %s: %w", s.dhParamPath, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("certstore: dhparam file %s is empty", s.dhParamPath)
	}
	return nil
}

// CACertificate returns the CA's own certificate, e.g. for an admin
// endpoint that serves it for client trust installation.
func (s *Store) CACertificate() *x509.Certificate {
	return s.caCert
}

// randomSerial returns a random positive serial number in [0, 2^63), the
// same width the original CA produces with a boost::random-backed
// generator over a signed 64-bit range.
func randomSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 63)
	return rand.Int(rand.Reader, limit)
}

func buildSubject(id Identity) pkix.Name {
	name := pkix.Name{CommonName: id.CommonName}
	if id.Country != "" {
		name.Country = []string{id.Country}
	}
	if id.State != "" {
		name.Province = []string{id.State}
	}
	if id.Locality != "" {
		name.Locality = []string{id.Locality}
	}
	if id.Organization != "" {
		name.Organization = []string{id.Organization}
	}
	if id.OrganizationalUnit != "" {
		name.OrganizationalUnit = []string{id.OrganizationalUnit}
	}
	return name
}

// isIPSAN reports whether san parses as an IP literal, mirroring the
// original's boost::asio::ip::address::from_string probe used to decide
// between a DNS and an IP subjectAltName entry.
func isIPSAN(san string) bool {
	return net.ParseIP(san) != nil
}
