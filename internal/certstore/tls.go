package certstore

import "crypto/tls"

// TLSCertificate adapts a minted MemoryCertificate into the shape
// crypto/tls.Config.GetCertificate expects, chaining in the CA certificate
// so clients that don't yet trust the CA separately still see a complete
// chain.
func (m MemoryCertificate) TLSCertificate(caDER []byte) tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{m.CertDER, caDER},
		PrivateKey:  m.Key,
		Leaf:        m.Cert,
	}
}

// CACertificateDER returns the DER encoding of the store's CA certificate,
// for chaining into leaf tls.Certificate values or serving from an admin
// "install this CA" endpoint.
func (s *Store) CACertificateDER() []byte {
	return s.caCert.Raw
}
