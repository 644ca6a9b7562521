// Package config builds the immutable Config struct every other
// component is constructed with. The on-disk format and
// override mechanism are grounded on the btcd-family config-file-plus-
// flags pattern (github.com/jessevdk/go-flags), with key names and
// semantics taken from original_source/src/config.rs.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"

	"go-testnet-node/internal/nodeerr"
)

// options is the go-flags-tagged shape parsed from both the INI file and
// the command line; long option names are the literal configuration
// keys this node recognizes.
type options struct {
	Address       string `long:"ADDRESS" description:"DNS seed hostname"`
	Port          int    `long:"PORT" default:"18333" description:"peer port"`
	Version       uint32 `long:"VERSION" default:"70015" description:"protocol version advertised"`
	HeadersFile   string `long:"NOMBRE_ARCHIVO_HEADERS" default:"headers.dat" description:"headers file path"`
	BlocksFile    string `long:"NOMBRE_ARCHIVO_BLOQUES" default:"blocks.dat" description:"blocks file path"`
	AccountsFile  string `long:"NOMBRE_ARCHIVO_CUENTAS" default:"accounts.dat" description:"accounts file path"`
	UTXODir       string `long:"UTXO_DIR" default:"utxo-index" description:"leveldb directory for the UTXO index"`
	LogFile       string `long:"LOG_FILE" default:"node.log" description:"log file path"`
	StartDay      string `long:"DIA_INICIAL" description:"YYYY-MM-DD, local midnight; filters headers older than this"`
	Threads       int    `long:"CANTIDAD_THREADS" default:"5" description:"IBD worker pool size"`
	Retries       int    `long:"REINTENTOS_DESCARGA_BLOQUES" default:"5" description:"max retries per download step"`
	ReadTimeoutMS int    `long:"READ_TIMEOUT_MS" default:"15000" description:"per-connection read timeout in milliseconds"`
}

// Config is the immutable, fully-resolved configuration every component
// takes a copy of at construction.
type Config struct {
	Address         string
	Port            int
	ProtocolVersion uint32
	HeadersFile     string
	BlocksFile      string
	AccountsFile    string
	UTXODir         string
	LogFile         string
	StartTimestamp  int64
	Threads         int
	Retries         int
	ReadTimeout     time.Duration
}

// Load parses path as a go-flags INI file, then applies any argv
// overrides, and resolves the result into an immutable Config.
func Load(path string, argv []string) (Config, error) {
	var opts options
	parser := flags.NewParser(&opts, flags.Default&^flags.PrintErrors)

	if path != "" {
		iniParser := flags.NewIniParser(parser)
		if err := iniParser.ParseFile(path); err != nil {
			if os.IsNotExist(err) {
				return Config{}, fmt.Errorf("%w: %s", nodeerr.ErrConfigMissing, path)
			}
			return Config{}, fmt.Errorf("%w: %s - %v", nodeerr.ErrConfigUnreadable, path, err)
		}
	}

	if len(argv) > 0 {
		if _, err := parser.ParseArgs(argv); err != nil {
			return Config{}, fmt.Errorf("%w: %v", nodeerr.ErrConfigUnreadable, err)
		}
	}

	if opts.Address == "" {
		return Config{}, fmt.Errorf("%w: ADDRESS", nodeerr.ErrConfigMissing)
	}

	startTS, err := parseStartDay(opts.StartDay)
	if err != nil {
		return Config{}, fmt.Errorf("%w: DIA_INICIAL %q - %v", nodeerr.ErrConfigUnreadable, opts.StartDay, err)
	}

	return Config{
		Address:         opts.Address,
		Port:            opts.Port,
		ProtocolVersion: opts.Version,
		HeadersFile:     opts.HeadersFile,
		BlocksFile:      opts.BlocksFile,
		AccountsFile:    opts.AccountsFile,
		UTXODir:         opts.UTXODir,
		LogFile:         opts.LogFile,
		StartTimestamp:  startTS,
		Threads:         opts.Threads,
		Retries:         opts.Retries,
		ReadTimeout:     time.Duration(opts.ReadTimeoutMS) * time.Millisecond,
	}, nil
}

// parseStartDay interprets DIA_INICIAL as YYYY-MM-DD local midnight;
// an empty value means "no filter" (timestamp 0).
func parseStartDay(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}
