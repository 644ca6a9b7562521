// Command nodobtc is the testnet node binary: it loads configuration, starts logging, discovers peers, runs
// initial block download to completion, then serves a small interactive
// console (balance / send / quit) while a broadcast listener per peer
// keeps the chain state current in the background.
package main

import (
	"bufio"
	"crypto/rand"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/btcsuite/btclog"

	"go-testnet-node/internal/address"
	"go-testnet-node/internal/broadcast"
	"go-testnet-node/internal/chain"
	"go-testnet-node/internal/config"
	"go-testnet-node/internal/ibd"
	"go-testnet-node/internal/keys"
	"go-testnet-node/internal/logger"
	"go-testnet-node/internal/mempool"
	"go-testnet-node/internal/nodeerr"
	"go-testnet-node/internal/peer"
	"go-testnet-node/internal/persist"
	"go-testnet-node/internal/uievents"
	"go-testnet-node/internal/utxo"
	"go-testnet-node/internal/wallet"
)

func main() {
	os.Exit(run())
}

// run wires every component together and returns a process exit code
// via nodeerr.ExitCode.
func run() int {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "nodobtc: %v\n", err)
		return nodeerr.ExitCode(err)
	}

	sink, err := logger.New(cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nodobtc: %v\n", err)
		return nodeerr.ExitCode(err)
	}
	defer sink.Shutdown()

	peerLog := sink.Component("PEER")
	ibdLog := sink.Component("IBD")
	bcstLog := sink.Component("BCST")
	utxoLog := sink.Component("UTXO")
	wlltLog := sink.Component("WLLT")
	peerLog.SetLevel(btclog.LevelInfo)

	peer.SetHandshakeDebug(func(s string) { peerLog.Debug(s) })
	peer.SetDebugLogger(func(s string) { peerLog.Debug(s) })

	events := make(chan uievents.Event)
	done := make(chan struct{})
	defer close(done)
	go printEvents(events)

	uievents.Send(events, done, uievents.Info(fmt.Sprintf("opening stores under %s / %s", cfg.HeadersFile, cfg.UTXODir)))
	stores, err := persist.OpenAll(cfg)
	if err != nil {
		utxoLog.Errorf("open stores: %v", err)
		uievents.Send(events, done, uievents.Failure(err))
		return nodeerr.ExitCode(err)
	}
	defer stores.Close()

	accounts, err := loadOrCreateAccount(stores.Accounts, wlltLog)
	if err != nil {
		wlltLog.Errorf("load accounts: %v", err)
		uievents.Send(events, done, uievents.Failure(err))
		return nodeerr.ExitCode(err)
	}

	utxoActor := utxo.New(stores.UTXO, utxo.DefaultPendingTTL)
	defer utxoActor.Shutdown()
	utxoActor.SetAccounts(accounts)

	pool := peer.NewPool(peer.Config{
		Seed:            cfg.Address,
		Port:            cfg.Port,
		ProtocolVersion: cfg.ProtocolVersion,
		ReadTimeout:     cfg.ReadTimeout,
	})
	defer pool.Shutdown()

	uievents.Send(events, done, uievents.LoadingStarted("discovering peers"))
	n, err := pool.Discover()
	uievents.Send(events, done, uievents.LoadingEnded("discovering peers"))
	if err != nil {
		peerLog.Errorf("discover: %v", err)
		uievents.Send(events, done, uievents.Failure(err))
		return nodeerr.ExitCode(err)
	}
	peerLog.Infof("connected to %d peer(s)", n)

	uievents.Send(events, done, uievents.LoadingStarted("initial block download"))
	ibdCfg := ibd.Config{
		Threads:         cfg.Threads,
		Retries:         cfg.Retries,
		StartTimestamp:  cfg.StartTimestamp,
		ProtocolVersion: cfg.ProtocolVersion,
		ReadTimeout:     cfg.ReadTimeout,
	}
	engine := ibd.New(pool, stores.Headers, stores.Blocks, ibdCfg, func(b chain.SerializedBlock) {
		if err := utxoActor.UpdateFromBlocksWithAccounts([]chain.SerializedBlock{b}, accounts); err != nil {
			utxoLog.Errorf("update from block: %v", err)
		}
	})
	if err := engine.Run(); err != nil {
		ibdLog.Errorf("ibd: %v", err)
		uievents.Send(events, done, uievents.Failure(err))
		return nodeerr.ExitCode(err)
	}
	uievents.Send(events, done, uievents.LoadingEnded("initial block download"))

	existing, err := stores.Headers.ReadAll()
	if err != nil {
		ibdLog.Errorf("read headers for dedupe: %v", err)
		return nodeerr.ExitCode(err)
	}
	dedupe := broadcast.NewDedupe(existing)
	mp := mempool.New()
	for _, c := range pool.Snapshot() {
		listener := broadcast.NewListener(pool, stores.Headers, stores.Blocks, utxoActor, dedupe, mp, cfg.ReadTimeout)
		go listener.Run(c.ID, c.Conn)
		bcstLog.Infof("listening on %s (conn %d)", c.Addr, c.ID)
	}

	builder := wallet.New(pool)
	uievents.Send(events, done, uievents.Info("ready: balance <address> | send <from> <to> <amount> <fee> | quit"))
	console(os.Stdin, os.Stdout, accounts, utxoActor, builder, wlltLog)
	return 0
}

// loadConfig splits argv into an optional leading config-file path
// followed by go-flags CLI overrides.
func loadConfig(argv []string) (config.Config, error) {
	path := "node.conf"
	if len(argv) > 0 && !strings.HasPrefix(argv[0], "-") {
		path = argv[0]
		argv = argv[1:]
	}
	return config.Load(path, argv)
}

// loadOrCreateAccount returns every persisted account, minting a fresh
// one on first run so there is always at least one to hold a balance in.
func loadOrCreateAccount(store *persist.AccountStore, log *logger.Component) ([]persist.Account, error) {
	accounts, err := store.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(accounts) > 0 {
		return accounts, nil
	}

	var secret [32]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return nil, fmt.Errorf("%w: generate account secret - %v", nodeerr.ErrInvalidAccount, err)
	}
	priv, err := keys.NewPrivateKey(secret[:])
	if err != nil {
		return nil, err
	}
	addr, err := address.FromPublicKey(priv.PublicKey())
	if err != nil {
		return nil, err
	}
	acc := persist.Account{SecretKeyWIF: priv.WIF(true), Address: addr, Label: "default"}
	if err := store.Append(acc); err != nil {
		return nil, err
	}
	log.Infof("created new account %s", acc.Address)
	return []persist.Account{acc}, nil
}

// printEvents renders the view channel to stdout, standing in for the
// out-of-scope graphical shell.
func printEvents(events <-chan uievents.Event) {
	for ev := range events {
		switch ev.Kind {
		case uievents.LoadingStart:
			fmt.Printf("... %s\n", ev.Message)
		case uievents.LoadingEnd:
			fmt.Printf("done: %s\n", ev.Message)
		case uievents.Error:
			fmt.Fprintf(os.Stderr, "error: %v\n", ev.Err)
		default:
			fmt.Println(ev.Message)
		}
	}
}

// console runs the interactive balance/send/quit loop against the UTXO
// actor and transaction builder until EOF or "quit".
func console(in *os.File, out *os.File, accounts []persist.Account, utxoActor *utxo.Actor, builder *wallet.Builder, log *logger.Component) {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "quit", "exit":
			return

		case "balance":
			if len(fields) != 2 {
				fmt.Fprintln(out, "usage: balance <address>")
				continue
			}
			amount, err := utxoActor.GetAvailable(fields[1])
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			fmt.Fprintf(out, "%d satoshis\n", amount)

		case "send":
			if len(fields) != 5 {
				fmt.Fprintln(out, "usage: send <from-address> <to-address> <amount> <fee>")
				continue
			}
			if err := doSend(accounts, utxoActor, builder, fields[1], fields[2], fields[3], fields[4], log); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}

		default:
			fmt.Fprintf(out, "unknown command %q\n", fields[0])
		}
	}
}

func doSend(accounts []persist.Account, utxoActor *utxo.Actor, builder *wallet.Builder, from, to, amountStr, feeStr string, log *logger.Component) error {
	amount, err := strconv.ParseInt(amountStr, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: amount %q - %v", nodeerr.ErrDecode, amountStr, err)
	}
	fee, err := strconv.ParseInt(feeStr, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: fee %q - %v", nodeerr.ErrDecode, feeStr, err)
	}

	var account persist.Account
	found := false
	for _, a := range accounts {
		if a.Address == from {
			account = a
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: no local account for %s", nodeerr.ErrInvalidAccount, from)
	}

	utxos, err := utxoActor.ListAvailable(from)
	if err != nil {
		return err
	}
	tx, err := builder.Build(account, to, amount, fee, utxos)
	if err != nil {
		return err
	}
	return builder.Broadcast(tx, func(addr string, err error) {
		log.Errorf("broadcast to %s failed: %v", addr, err)
	})
}
