package config

import "time"

// Config is the proxy's runtime configuration, assembled from CLI flags and
// (optionally) a YAML file via LoadConfig. Its struct shape and the
// post-unmarshal defaulting pattern in defaults() follow the same grouped
// sub-structs, one per concern (listener, timeouts, TLS, WebSocket, admin,
// logging), that original_source/src/aether/proxy/server_components.hpp's
// options types use.
type Config struct {
	Listen struct {
		Port            int  `yaml:"port"`
		IPv6            bool `yaml:"ipv6"`
		Threads         int  `yaml:"threads"`
		ConnectionLimit int  `yaml:"connection_limit"`
	} `yaml:"listen"`

	Timeouts struct {
		Request time.Duration `yaml:"request"`
		Tunnel  time.Duration `yaml:"tunnel"`
	} `yaml:"timeouts"`

	BodySizeLimit int64 `yaml:"body_size_limit"`

	SSL struct {
		Passthrough       bool   `yaml:"passthrough"`
		PassthroughStrict bool   `yaml:"passthrough_strict"`
		ClientMethod      string `yaml:"client_method"`
		ServerMethod      string `yaml:"server_method"`
		Verify            bool   `yaml:"verify"`
		NegotiateCiphers  bool   `yaml:"negotiate_ciphers"`
		NegotiateALPN     bool   `yaml:"negotiate_alpn"`
		SupplyServerChain bool   `yaml:"supply_server_chain"`
		CertificateProps  string `yaml:"certificate_properties"`
		CertificateDir    string `yaml:"certificate_dir"`
		DHParamFile       string `yaml:"dhparam_file"`
		UpstreamTrustedCA string `yaml:"upstream_trusted_ca_file"`
	} `yaml:"ssl"`

	WebSocket struct {
		Passthrough       bool `yaml:"passthrough"`
		PassthroughStrict bool `yaml:"passthrough_strict"`
		InterceptDefault  bool `yaml:"intercept_default"`
	} `yaml:"websocket"`

	Admin struct {
		Interactive bool `yaml:"interactive"`
	} `yaml:"admin"`

	Logging struct {
		Logs    bool   `yaml:"logs"`
		Silent  bool   `yaml:"silent"`
		LogFile string `yaml:"log_file"`
	} `yaml:"logging"`
}

// defaults fills in a sensible non-zero value for every knob left at its
// zero value after unmarshaling, one "if c.Field == zero { c.Field =
// default }" line per field. Threads and ConnectionLimit are deliberately
// left at zero: both are "0 means auto/unlimited" sentinels consumed
// directly by ioruntime.
func (c *Config) defaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.Timeouts.Request == 0 {
		c.Timeouts.Request = 120 * time.Second
	}
	if c.Timeouts.Tunnel == 0 {
		c.Timeouts.Tunnel = 30 * time.Second
	}
	if c.SSL.ClientMethod == "" {
		c.SSL.ClientMethod = "TLS"
	}
	if c.SSL.ServerMethod == "" {
		c.SSL.ServerMethod = "TLS"
	}
	if c.SSL.CertificateProps == "" {
		c.SSL.CertificateProps = "proxy.properties"
	}
	if c.SSL.CertificateDir == "" {
		c.SSL.CertificateDir = "."
	}
	if c.SSL.DHParamFile == "" {
		c.SSL.DHParamFile = "dhparam.default.pem"
	}
}
