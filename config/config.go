// Package config parses pownoded's command-line configuration, in the
// same jessevdk/go-flags style the rest of the pack's daemons use.
package config

import (
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
	"github.com/opensyria/pownode/address"
	"github.com/opensyria/pownode/chaincfg"
	"github.com/pkg/errors"
)

const (
	defaultDataDirname    = "data"
	defaultLogFilename    = "pownoded.log"
	defaultErrLogFilename = "pownoded_err.log"
	defaultListen         = ":9963"
	defaultMaxPeers       = 32
	defaultLogLevel       = "info"
)

// Config holds every value pownoded needs to start: where to store the
// chain, which network to join, who to dial, and how to log.
type Config struct {
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	HomeDir    string `long:"datadir" description:"Directory to store the chain database and logs"`

	Network string `long:"network" description:"Network to join: mainnet or testnet" default:"mainnet"`

	Listen      string   `long:"listen" description:"Address to listen for peer connections on"`
	ConnectPeers []string `long:"connect" description:"Address of a peer to connect to on startup (may be given multiple times)"`
	MaxPeers    int      `long:"maxpeers" description:"Maximum number of peer connections"`

	MiningAddress string `long:"miningaddr" description:"Address to receive coinbase subsidies; mining is disabled if omitted"`

	DebugLevel string `long:"debuglevel" description:"Logging level: trace, debug, info, warn, error, critical, or subsystem=level pairs"`

	NetworkID uint32 `long:"networkid" description:"Peer-protocol network identifier; peers with a different value are rejected at Hello"`

	// Params is resolved from Network after parsing; it carries no flag
	// tags of its own so go-flags leaves it alone.
	Params chaincfg.Params
}

// Load parses the command line into a Config, filling in defaults and
// resolving Network into the matching chaincfg.Params. The --configfile
// value is accepted but the file it names is not read.
func Load() (*Config, error) {
	preCfg := &Config{}
	parser := flags.NewParser(preCfg, flags.PrintErrors|flags.HelpFlag)
	if _, err := parser.Parse(); err != nil {
		return nil, err
	}

	if preCfg.HomeDir == "" {
		preCfg.HomeDir = defaultHomeDir()
	}
	if err := os.MkdirAll(preCfg.HomeDir, 0700); err != nil {
		return nil, errors.Wrap(err, "failed to create data directory")
	}

	if preCfg.Listen == "" {
		preCfg.Listen = defaultListen
	}
	if preCfg.MaxPeers == 0 {
		preCfg.MaxPeers = defaultMaxPeers
	}
	if preCfg.DebugLevel == "" {
		preCfg.DebugLevel = defaultLogLevel
	}

	switch preCfg.Network {
	case "", "mainnet":
		preCfg.Params = chaincfg.MainnetParams
	case "testnet":
		preCfg.Params = chaincfg.TestnetParams
	default:
		return nil, errors.Errorf("unknown network %q, expected mainnet or testnet", preCfg.Network)
	}
	if preCfg.NetworkID == 0 {
		preCfg.NetworkID = preCfg.Params.ChainID
	}

	if preCfg.MiningAddress != "" {
		if _, err := address.Parse(preCfg.MiningAddress); err != nil {
			return nil, errors.Wrap(err, "invalid --miningaddr")
		}
	}

	return preCfg, nil
}

// DataDir is where the chain database lives, a subdirectory of HomeDir so
// logs and the database never collide.
func (c *Config) DataDir() string {
	return filepath.Join(c.HomeDir, defaultDataDirname)
}

// LogFile and ErrLogFile are the two log rotator targets, per the
// logger package's InitLogRotators contract.
func (c *Config) LogFile() string    { return filepath.Join(c.HomeDir, "logs", defaultLogFilename) }
func (c *Config) ErrLogFile() string { return filepath.Join(c.HomeDir, "logs", defaultErrLogFilename) }

// MiningKeyAddress parses MiningAddress, returning the zero address (and
// ok=false) if mining is disabled.
func (c *Config) MiningKeyAddress() (addr address.Address, ok bool, err error) {
	if c.MiningAddress == "" {
		return address.Address{}, false, nil
	}
	addr, err = address.Parse(c.MiningAddress)
	if err != nil {
		return address.Address{}, false, err
	}
	return addr, true, nil
}

func defaultHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "."+appName())
	}
	return filepath.Join(home, "."+appName())
}

func appName() string {
	return "pownoded"
}
