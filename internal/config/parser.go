package config

import (
	"bufio"
	"crypto/x509"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aetherproxy/aetherproxy/internal/certstore"
	"github.com/aetherproxy/aetherproxy/internal/flow"
)

// LoadConfig reads a YAML file at path into a Config, then applies
// defaults() to fill in anything left unset. A missing file is not an
// error: an empty Config with defaults applied is returned, since every
// setting also has a CLI flag and the file itself is optional.
func LoadConfig(path string) (*Config, error) {
	c := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				c.defaults()
				return c, nil
			}
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	c.defaults()
	return c, nil
}

// LoadProperties reads a simple "key=value" file, one setting per line, with
// "#"-prefixed comment lines and blank lines ignored. A properties file
// rather than a structured one, since the CA subject fields it carries (see
// the commonName/countryCode/... keys server_store.cpp reads when minting
// the root certificate) are a flat key/value list with no nesting.
func LoadProperties(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	props := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("config: %s: malformed line %q", path, line)
		}
		props[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: scan %s: %w", path, err)
	}
	return props, nil
}

// BuildIdentity maps a proxy.properties key set onto the CA subject
// certstore.Store.Open needs to mint (or recognize) the root certificate.
func BuildIdentity(props map[string]string) certstore.Identity {
	id := certstore.Identity{
		CommonName:         props["commonName"],
		Country:            props["countryCode"],
		State:              props["stateOrProvinceName"],
		Locality:           props["localityName"],
		Organization:       props["organizationName"],
		OrganizationalUnit: props["organizationalUnitName"],
		DNQualifier:        props["dnQualifier"],
		Password:           props["password"],
	}
	if ks, ok := props["keySize"]; ok {
		if n, err := strconv.Atoi(ks); err == nil {
			id.KeySize = n
		}
	}
	return id
}

// LoadTrustedCAPool reads a PEM bundle of upstream-trusted root certificates
// (e.g. a mozilla-cacert.pem-style bundle), used to verify the real server
// when SSLVerify is enabled and SSLSupplyServerChain dials upstream.
func LoadTrustedCAPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read trusted CA bundle %s: %w", path, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("config: %s contains no usable certificates", path)
	}
	return pool, nil
}

// ToFlowOptions projects the SSL/WebSocket/timeout knobs onto flow.Options.
// trustedCAs may be nil (no upstream verification configured); it is only
// consulted when c.SSL.Verify is set.
func (c *Config) ToFlowOptions(trustedCAs *x509.CertPool) flow.Options {
	opts := flow.Options{
		SSLPassthroughStrict: c.SSL.PassthroughStrict,
		SSLPassthrough:       c.SSL.Passthrough,
		SSLSupplyServerChain: c.SSL.SupplyServerChain,
		WSPassthroughStrict:  c.WebSocket.PassthroughStrict,
		WSPassthrough:        c.WebSocket.Passthrough,
		WSInterceptDefault:   c.WebSocket.InterceptDefault,
		BodySizeLimit:        c.BodySizeLimit,
		Timeout:              c.Timeouts.Request,
		TunnelTimeout:        c.Timeouts.Tunnel,
	}
	opts.UpstreamTLS.InsecureSkipVerify = !c.SSL.Verify
	if c.SSL.Verify {
		opts.UpstreamTLS.RootCAs = trustedCAs
	}
	return opts
}
