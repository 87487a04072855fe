package nodeconfig

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Default values for a node that has never been configured.
const (
	DefaultAccount        = "0x0000000000000000000000000000000000000000"
	DefaultUpstream       = "wss://mainnet.infura.io/ws/v3/547e677c41724f8fa8c4bfde1aecef20"
	DefaultListenHostPort = "127.0.0.1:10545"
	DefaultBatchSize      = 100
)

// Config is the full argument set for one node instance.
type Config struct {
	// ImpersonatedAccount is the account the node acts as (-account).
	ImpersonatedAccount string `json:"impersonated_account"`

	// Web3RPC is the upstream RPC endpoint, usually a wss:// URL (-upstream).
	Web3RPC string `json:"web3_rpc"`

	// ListenHostPort is the host:port the node serves on (-listen).
	ListenHostPort string `json:"listen_host_port"`

	// KeyCacheFilePath is optional. Empty means -keycache is omitted.
	KeyCacheFilePath string `json:"key_cache_file_path"`

	// LogFilePath is passed through as -logpath, even when empty.
	LogFilePath string `json:"log_file_path"`

	// BatchSize is the node's request batch size (-batchsize).
	BatchSize int64 `json:"batch_size"`
}

// Default returns the fixed record used whenever no valid document exists.
func Default() Config {
	return Config{
		ImpersonatedAccount: DefaultAccount,
		Web3RPC:             DefaultUpstream,
		ListenHostPort:      DefaultListenHostPort,
		KeyCacheFilePath:    "",
		LogFilePath:         "",
		BatchSize:           DefaultBatchSize,
	}
}

// BuildArgs returns the node command line for this config, without the
// executable name. The order is fixed so identical configs yield identical
// argument vectors.
func (c Config) BuildArgs() []string {
	args := []string{
		"-account", c.ImpersonatedAccount,
		"-logpath", c.LogFilePath,
		"-upstream", c.Web3RPC,
		"-listen", c.ListenHostPort,
	}

	if c.KeyCacheFilePath != "" {
		args = append(args, "-keycache", c.KeyCacheFilePath)
	}

	args = append(args, "-batchsize", strconv.FormatInt(c.BatchSize, 10))

	return args
}

// Validate checks that the config can plausibly start a node. It is used to
// reject restart requests before the running instance is touched.
//
// It is stricter than the document format: Decode and Load accept any
// batch_size and any web3_rpc string, while Validate requires a positive
// batch size and an absolute web3_rpc URL. A persisted document that fails
// Validate still loads and is passed to the node as is.
func (c Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.ImpersonatedAccount) == "" {
		errs = append(errs, "impersonated_account is required")
	}

	if u, err := url.Parse(c.Web3RPC); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("web3_rpc %q is not an absolute URL", c.Web3RPC))
	}

	if err := validateHostPort(c.ListenHostPort); err != nil {
		errs = append(errs, fmt.Sprintf("listen_host_port: %v", err))
	}

	if c.BatchSize <= 0 {
		errs = append(errs, "batch_size must be greater than 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	return nil
}

func validateHostPort(hostPort string) error {
	_, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("port %q must be between 1 and 65535", portStr)
	}
	return nil
}
