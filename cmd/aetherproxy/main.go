// Command aetherproxy runs the intercepting HTTP/HTTPS/WebSocket proxy.
// Flag handling uses a cobra root command with persistent flags and an
// Execute/os.Exit(1) exit contract: exit 0 on a clean shutdown, exit 1 on a
// configuration error or unexpected startup failure.
package main

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aetherproxy/aetherproxy/internal/admin"
	"github.com/aetherproxy/aetherproxy/internal/certstore"
	"github.com/aetherproxy/aetherproxy/internal/config"
	"github.com/aetherproxy/aetherproxy/internal/intercept"
	"github.com/aetherproxy/aetherproxy/internal/ioruntime"
)

var flags struct {
	configFile string

	port            int
	ipv6            bool
	threads         int
	connectionLimit int

	timeout       int
	tunnelTimeout int
	bodySizeLimit int64

	sslPassthrough       bool
	sslPassthroughStrict bool
	sslClientMethod      string
	sslServerMethod      string
	sslVerify            bool
	sslNegotiateCiphers  bool
	sslNegotiateALPN     bool
	sslSupplyChain       bool
	sslCertProps         string
	sslCertDir           string
	sslDHParamFile       string
	upstreamTrustedCA    string

	wsPassthrough       bool
	wsPassthroughStrict bool
	wsInterceptDefault  bool

	interactive bool
	adminAddr   string
	logs        bool
	silent      bool
	logFile     string
}

var rootCmd = &cobra.Command{
	Use:   "aetherproxy",
	Short: "Intercepting HTTP/HTTPS/WebSocket proxy",
	Long: `aetherproxy terminates and replays HTTP, HTTPS (via a minted
certificate chain), and WebSocket traffic for a local client population,
firing interceptor events at each stage of the exchange.`,
	RunE: runServe,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&flags.configFile, "config", "", "YAML config file (optional; flags override it)")

	f.IntVarP(&flags.port, "port", "p", 0, "listen port (config default 8080)")
	f.BoolVar(&flags.ipv6, "ipv6", false, "listen on an IPv6 wildcard address")
	f.IntVar(&flags.threads, "threads", 0, "worker pool size (0 = 2*GOMAXPROCS)")
	f.IntVar(&flags.connectionLimit, "connection-limit", 0, "accept rate limit in connections/sec (0 = unlimited)")

	f.IntVar(&flags.timeout, "timeout", 0, "upstream request timeout in seconds")
	f.IntVar(&flags.tunnelTimeout, "tunnel-timeout", 0, "tunnel/WebSocket idle timeout in seconds")
	f.Int64Var(&flags.bodySizeLimit, "body-size-limit", 0, "maximum buffered HTTP body size in bytes")

	f.BoolVar(&flags.sslPassthrough, "ssl-passthrough", false, "tunnel TLS opaquely unless an interceptor opts in")
	f.BoolVar(&flags.sslPassthroughStrict, "ssl-passthrough-strict", false, "always tunnel TLS opaquely")
	f.StringVar(&flags.sslClientMethod, "ssl-client-method", "", "TLS method presented to the client")
	f.StringVar(&flags.sslServerMethod, "ssl-server-method", "", "TLS method used dialing upstream")
	f.BoolVar(&flags.sslVerify, "ssl-verify", false, "verify the upstream certificate against the trusted CA file")
	f.BoolVar(&flags.sslNegotiateCiphers, "ssl-negotiate-ciphers", false, "mirror the client's offered cipher suites upstream")
	f.BoolVar(&flags.sslNegotiateALPN, "ssl-negotiate-alpn", false, "mirror the client's offered ALPN protocols upstream")
	f.BoolVar(&flags.sslSupplyChain, "ssl-supply-server-chain", false, "harvest the upstream chain before minting a leaf")
	f.StringVar(&flags.sslCertProps, "ssl-certificate-properties", "", "CA subject properties file (default proxy.properties)")
	f.StringVar(&flags.sslCertDir, "ssl-certificate-dir", "", "directory holding the CA keypair")
	f.StringVar(&flags.sslDHParamFile, "ssl-dhparam-file", "", "Diffie-Hellman parameters file")
	f.StringVar(&flags.upstreamTrustedCA, "upstream-trusted-ca-file", "", "PEM bundle of upstream-trusted roots")

	f.BoolVar(&flags.wsPassthrough, "ws-passthrough", false, "forward WebSocket frames unexamined unless an interceptor opts in")
	f.BoolVar(&flags.wsPassthroughStrict, "ws-passthrough-strict", false, "always forward WebSocket frames unexamined")
	f.BoolVar(&flags.wsInterceptDefault, "ws-intercept-default", false, "intercept WebSocket messages by default")

	f.BoolVar(&flags.interactive, "interactive", false, "pause signal-driven shutdown while an operator is attached")
	f.StringVar(&flags.adminAddr, "admin-addr", "", "admin/metrics listen address (empty disables it)")
	f.BoolVar(&flags.logs, "logs", false, "enable verbose request/response logging")
	f.BoolVarP(&flags.silent, "silent", "s", false, "suppress all but error logs")
	f.StringVarP(&flags.logFile, "log-file", "l", "", "write logs to this file instead of stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "aetherproxy: %v\n", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(flags.configFile)
	if err != nil {
		return err
	}
	applyFlagOverrides(cfg)

	log, flush, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer flush()

	props, err := config.LoadProperties(cfg.SSL.CertificateProps)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		props = map[string]string{}
	}
	identity := config.BuildIdentity(props)

	certs, err := certstore.Open(cfg.SSL.CertificateDir, identity, cfg.SSL.DHParamFile)
	if err != nil {
		return fmt.Errorf("opening certificate store: %w", err)
	}

	var trustedCAs *x509.CertPool
	if cfg.SSL.Verify && cfg.SSL.UpstreamTrustedCA != "" {
		trustedCAs, err = config.LoadTrustedCAPool(cfg.SSL.UpstreamTrustedCA)
		if err != nil {
			return err
		}
	}

	opts := cfg.ToFlowOptions(trustedCAs)
	dispatcher := intercept.NewDispatcher()

	addr := fmt.Sprintf(":%d", cfg.Listen.Port)
	if cfg.Listen.IPv6 {
		addr = fmt.Sprintf("[::]:%d", cfg.Listen.Port)
	}

	rt, err := ioruntime.New(addr, cfg.Listen.Threads, float64(cfg.Listen.ConnectionLimit), cfg.Listen.ConnectionLimit, dispatcher, certs, opts, log)
	if err != nil {
		return fmt.Errorf("starting listener on %s: %w", addr, err)
	}
	if cfg.Admin.Interactive {
		rt.Pause()
	}

	if flags.adminAddr != "" {
		srv := admin.New(rt, certs)
		go func() {
			if err := http.ListenAndServe(flags.adminAddr, srv); err != nil {
				log.Warnw("admin server stopped", "err", err)
			}
		}()
	}

	bodyLimit := "unbounded"
	if cfg.BodySizeLimit > 0 {
		bodyLimit = units.BytesSize(float64(cfg.BodySizeLimit))
	}
	log.Infow("listening", "addr", addr, "bodySizeLimit", bodyLimit)
	return rt.Run(context.Background())
}

func applyFlagOverrides(cfg *config.Config) {
	if flags.port != 0 {
		cfg.Listen.Port = flags.port
	}
	if flags.ipv6 {
		cfg.Listen.IPv6 = true
	}
	if flags.threads != 0 {
		cfg.Listen.Threads = flags.threads
	}
	if flags.connectionLimit != 0 {
		cfg.Listen.ConnectionLimit = flags.connectionLimit
	}
	if flags.timeout != 0 {
		cfg.Timeouts.Request = time.Duration(flags.timeout) * time.Second
	}
	if flags.tunnelTimeout != 0 {
		cfg.Timeouts.Tunnel = time.Duration(flags.tunnelTimeout) * time.Second
	}
	if flags.bodySizeLimit != 0 {
		cfg.BodySizeLimit = flags.bodySizeLimit
	}

	if flags.sslPassthrough {
		cfg.SSL.Passthrough = true
	}
	if flags.sslPassthroughStrict {
		cfg.SSL.PassthroughStrict = true
	}
	if flags.sslClientMethod != "" {
		cfg.SSL.ClientMethod = flags.sslClientMethod
	}
	if flags.sslServerMethod != "" {
		cfg.SSL.ServerMethod = flags.sslServerMethod
	}
	if flags.sslVerify {
		cfg.SSL.Verify = true
	}
	if flags.sslNegotiateCiphers {
		cfg.SSL.NegotiateCiphers = true
	}
	if flags.sslNegotiateALPN {
		cfg.SSL.NegotiateALPN = true
	}
	if flags.sslSupplyChain {
		cfg.SSL.SupplyServerChain = true
	}
	if flags.sslCertProps != "" {
		cfg.SSL.CertificateProps = flags.sslCertProps
	}
	if flags.sslCertDir != "" {
		cfg.SSL.CertificateDir = flags.sslCertDir
	}
	if flags.sslDHParamFile != "" {
		cfg.SSL.DHParamFile = flags.sslDHParamFile
	}
	if flags.upstreamTrustedCA != "" {
		cfg.SSL.UpstreamTrustedCA = flags.upstreamTrustedCA
	}

	if flags.wsPassthrough {
		cfg.WebSocket.Passthrough = true
	}
	if flags.wsPassthroughStrict {
		cfg.WebSocket.PassthroughStrict = true
	}
	if flags.wsInterceptDefault {
		cfg.WebSocket.InterceptDefault = true
	}

	if flags.interactive {
		cfg.Admin.Interactive = true
	}
	if flags.logs {
		cfg.Logging.Logs = true
	}
	if flags.silent {
		cfg.Logging.Silent = true
	}
	if flags.logFile != "" {
		cfg.Logging.LogFile = flags.logFile
	}
}

func buildLogger(cfg *config.Config) (*zap.SugaredLogger, func(), error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Logging.Logs {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Logging.Silent {
		zcfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}
	if cfg.Logging.LogFile != "" {
		zcfg.OutputPaths = []string{cfg.Logging.LogFile}
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("building logger: %w", err)
	}
	return logger.Sugar(), func() { _ = logger.Sync() }, nil
}
