package certstore

import (
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"net"
	"time"
)

// GetOrMint returns a cached leaf certificate matching iface, minting and
// caching a new one if none is found (original server_store.cpp's
// get_certificate + create_certificate pair).
func (s *Store) GetOrMint(iface Interface) (MemoryCertificate, error) {
	if cert, ok := s.cache.lookup(iface); ok {
		return cert, nil
	}
	return s.mint(iface)
}

func (s *Store) mint(iface Interface) (MemoryCertificate, error) {
	cert, err := s.generateCertificate(iface)
	if err != nil {
		return MemoryCertificate{}, err
	}
	if iface.CommonName != "" {
		s.cache.insert(iface.CommonName, cert)
	}
	for _, san := range iface.SANs {
		s.cache.insert(san, cert)
	}
	return cert, nil
}

// generateCertificate mints a leaf signed by the CA, following
// server_store.cpp::generate_certificate field-for-field: CN only if under
// 64 bytes, DNS/IP SANs, serverAuth/clientAuth EKU, and — the deliberately
// preserved Open Question — the leaf's public key is the CA's own public
// key rather than a freshly generated one.
func (s *Store) generateCertificate(iface Interface) (MemoryCertificate, error) {
	serial, err := randomSerial()
	if err != nil {
		return MemoryCertificate{}, fmt.Errorf("certstore: generate leaf serial: %w", err)
	}

	now := time.Now()
	hasValidCN := iface.CommonName != "" && len(iface.CommonName) < 64

	subject := pkix.Name{}
	if hasValidCN {
		subject.CommonName = iface.CommonName
	}
	if iface.Organization != "" {
		subject.Organization = []string{iface.Organization}
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      subject,
		NotBefore:    now,
		NotAfter:     now.Add(DefaultExpiry),
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}

	var dnsNames, ipSANs []string
	for _, san := range iface.SANs {
		if isIPSAN(san) {
			ipSANs = append(ipSANs, san)
		} else {
			dnsNames = append(dnsNames, san)
		}
	}
	if len(dnsNames) > 0 || len(ipSANs) > 0 {
		template.DNSNames = dnsNames
		for _, ip := range ipSANs {
			if parsed := net.ParseIP(ip); parsed != nil {
				template.IPAddresses = append(template.IPAddresses, parsed)
			}
		}
		// Without a usable CN, the SAN extension is the only identity the
		// certificate carries; mark the issuing basic constraint explicitly
		// false to keep this a strict leaf regardless.
		template.BasicConstraintsValid = true
		template.IsCA = false
	}

	der, err := x509.CreateCertificate(rand.Reader, template, s.caCert, &s.caKey.PublicKey, s.caKey)
	if err != nil {
		return MemoryCertificate{}, fmt.Errorf("certstore: sign leaf certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return MemoryCertificate{}, fmt.Errorf("certstore: parse freshly minted leaf: %w", err)
	}

	names := append(append([]string(nil), dnsNames...), ipSANs...)
	if hasValidCN {
		names = append([]string{iface.CommonName}, names...)
	}

	return MemoryCertificate{
		Cert:    leaf,
		CertDER: der,
		Key:     s.caKey,
		Names:   names,
	}, nil
}
