package certstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pemBlockTypeKey  = "RSA PRIVATE KEY"
	pemBlockTypeCert = "CERTIFICATE"

	pbkdf2Iterations = 100000
	pbkdf2SaltSize   = 16
	aesKeySize       = 32
)

// createStore generates a fresh CA keypair and self-signed certificate, then
// persists both to disk (original server_store.cpp::create_store +
// create_ca).
func (s *Store) createStore(keyPath, certPath string, id Identity) error {
	key, err := rsa.GenerateKey(rand.Reader, id.KeySize)
	if err != nil {
		return fmt.Errorf("certstore: generate CA key: %w", err)
	}

	serial, err := randomSerial()
	if err != nil {
		return fmt.Errorf("certstore: generate CA serial: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               buildSubject(id),
		NotBefore:             now,
		NotAfter:              now.Add(DefaultExpiry),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		ExtKeyUsage: []x509.ExtKeyUsage{
			x509.ExtKeyUsageServerAuth,
			x509.ExtKeyUsageClientAuth,
			x509.ExtKeyUsageEmailProtection,
			x509.ExtKeyUsageTimeStamping,
		},
		SubjectKeyId: subjectKeyID(&key.PublicKey),
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("certstore: create CA certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return fmt.Errorf("certstore: parse freshly created CA certificate: %w", err)
	}

	if err := writeKeyPEM(keyPath, key, id.Password); err != nil {
		return err
	}
	if err := writeCertPEM(certPath, der); err != nil {
		return err
	}

	s.caKey = key
	s.caCert = cert
	return nil
}

// readStore loads an existing CA keypair from disk (original
// server_store.cpp::read_store).
func (s *Store) readStore(keyPath, certPath, password string) error {
	key, err := readKeyPEM(keyPath, password)
	if err != nil {
		return err
	}
	certDER, err := readCertPEM(certPath)
	if err != nil {
		return err
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return fmt.Errorf("certstore: parse existing CA certificate: %w", err)
	}

	s.caKey = key
	s.caCert = cert
	return nil
}

func subjectKeyID(pub *rsa.PublicKey) []byte {
	sum := sha256.Sum256(x509.MarshalPKCS1PublicKey(pub))
	return sum[:20]
}

// writeKeyPEM persists an RSA private key, optionally password-encrypted.
// The original encrypts with PEM_write_PrivateKey + EVP_des_ede3_cbc();
// Go's x509.EncryptPEMBlock is deprecated and insecure (PBES1/DES), so a
// password here instead derives an AES-256-GCM key via PBKDF2-SHA256; the
// PEM block carries a custom header recording the salt, and the GCM nonce is
// prefixed to the encrypted bytes.
func writeKeyPEM(path string, key *rsa.PrivateKey, password string) error {
	der := x509.MarshalPKCS1PrivateKey(key)

	block := &pem.Block{Type: pemBlockTypeKey, Bytes: der}
	if password != "" {
		encrypted, headers, err := encryptPEMBytes(der, password)
		if err != nil {
			return fmt.Errorf("certstore: encrypt CA key: %w", err)
		}
		block = &pem.Block{Type: pemBlockTypeKey, Headers: headers, Bytes: encrypted}
	}

	return writePEMFile(path, block)
}

func readKeyPEM(path, password string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("certstore: read CA key %s: %w", path, err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("certstore: %s is not valid PEM", path)
	}

	der := block.Bytes
	if _, ok := block.Headers["Aether-Salt"]; ok {
		der, err = decryptPEMBytes(block, password)
		if err != nil {
			return nil, fmt.Errorf("certstore: decrypt CA key: %w", err)
		}
	}

	key, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("certstore: parse CA key: %w", err)
	}
	return key, nil
}

func writeCertPEM(path string, der []byte) error {
	return writePEMFile(path, &pem.Block{Type: pemBlockTypeCert, Bytes: der})
}

func readCertPEM(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("certstore: read CA cert %s: %w", path, err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("certstore: %s is not valid PEM", path)
	}
	return block.Bytes, nil
}

func writePEMFile(path string, block *pem.Block) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("certstore: open %s for writing: %w", path, err)
	}
	defer f.Close()
	return pem.Encode(f, block)
}

func encryptPEMBytes(plaintext []byte, password string) ([]byte, map[string]string, error) {
	salt := make([]byte, pbkdf2SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, nil, err
	}
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, err
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	headers := map[string]string{
		"Aether-Salt": hex.EncodeToString(salt),
	}
	return ciphertext, headers, nil
}

func decryptPEMBytes(block *pem.Block, password string) ([]byte, error) {
	salt, err := hex.DecodeString(block.Headers["Aether-Salt"])
	if err != nil {
		return nil, fmt.Errorf("malformed salt header: %w", err)
	}
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeySize, sha256.New)

	aesBlock, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(aesBlock)
	if err != nil {
		return nil, err
	}
	if len(block.Bytes) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := block.Bytes[:gcm.NonceSize()], block.Bytes[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
