// Package node assembles the swap node: it owns the lifecycle of every
// component the other packages implement — persistence, the in-memory
// swap store, the negotiation transport, the HTTP façade, the ledger
// watchers — and re-drives in-flight swaps across restarts.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"golang.org/x/exp/slog"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/comit-network/cnd/db"
	"github.com/comit-network/cnd/executor"
	"github.com/comit-network/cnd/htlc"
	"github.com/comit-network/cnd/httpapi"
	"github.com/comit-network/cnd/network"
	"github.com/comit-network/cnd/seed"
	"github.com/comit-network/cnd/statemachine"
	"github.com/comit-network/cnd/store"
	"github.com/comit-network/cnd/swap"
	"github.com/comit-network/cnd/watch"
	watchbitcoin "github.com/comit-network/cnd/watch/bitcoin"
	watchethereum "github.com/comit-network/cnd/watch/ethereum"
)

const (
	databaseFile = "cnd.sqlite"
	seedFile     = "seed.mnemonic"
)

// bitcoinBackend bundles the watch-side and inspect-side views of one
// Bitcoin node connection; ethereumBackend is its Ethereum counterpart.
type bitcoinBackend struct {
	connector *watchbitcoin.Connector
	inspector *watchbitcoin.Inspector
}

type ethereumBackend struct {
	connector *watchethereum.Connector
	inspector *watchethereum.Inspector
}

// Node is the assembled cnd process.
type Node struct {
	config  Config
	dataDir string

	db      *db.Store
	secrets *seed.SecretSource
	swaps   *store.Store

	dialer     *network.WebsocketDialer
	negotiator *network.Negotiator

	bitcoin  *bitcoinBackend
	ethereum *ethereumBackend

	exec   *executor.Executor
	cancel context.CancelFunc

	apiServer *http.Server
	p2pServer *http.Server

	stopConfigWatch func()

	now func() time.Time
}

// New opens the node's durable state (datadir, database, seed) without
// starting any network listener or watcher; Start does that.
func New(cfg Config) (*Node, error) {
	setupLogging(cfg.Log)

	dataDir, err := cfg.EnsureDataDir()
	if err != nil {
		return nil, err
	}

	secrets, err := loadOrCreateSeed(filepath.Join(dataDir, seedFile))
	if err != nil {
		return nil, err
	}

	database, err := db.Open(filepath.Join(dataDir, databaseFile))
	if err != nil {
		return nil, err
	}

	dialer := network.NewWebsocketDialer()
	return &Node{
		config:     cfg,
		dataDir:    dataDir,
		db:         database,
		secrets:    secrets,
		swaps:      store.New(),
		dialer:     dialer,
		negotiator: network.NewNegotiator(dialer),
		now:        time.Now,
	}, nil
}

// Start connects the ledger backends, begins listening for peers and
// HTTP clients, and resumes every accepted, unfinished swap from the
// database with cutoff_timestamp = created_at (spec.md §4.5).
func (n *Node) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.exec = executor.New(runCtx)

	if err := n.connectBackends(); err != nil {
		cancel()
		return err
	}

	if err := n.dialer.Listen(func(ctx context.Context, from network.PeerID, env network.Envelope) (network.Envelope, error) {
		return network.HandleInbound(ctx, from, env, n.decideInbound)
	}); err != nil {
		cancel()
		return err
	}

	api := httpapi.New(httpapi.Deps{
		Store:        n.swaps,
		DB:           n.db,
		Secrets:      n.secrets,
		Negotiator:   n.negotiator,
		Identities:   n,
		OnTransition: n.onTransition,
		Now:          n.now,
	})
	n.apiServer = &http.Server{Addr: n.config.HTTP.ListenAddr, Handler: api}
	n.p2pServer = &http.Server{Addr: n.config.P2P.ListenAddr, Handler: n.dialer.Handler()}

	n.serve("http-api", n.apiServer)
	n.serve("p2p", n.p2pServer)

	if err := n.resume(runCtx); err != nil {
		cancel()
		return err
	}

	log.Info("cnd started", "datadir", n.dataDir, "http", n.config.HTTP.ListenAddr, "p2p", n.config.P2P.ListenAddr)
	return nil
}

// WatchConfigFile re-applies reloadable settings (the log level) when
// the config file at path changes.
func (n *Node) WatchConfigFile(path string) error {
	stop, err := WatchConfig(path, func(cfg Config) {
		setupLogging(cfg.Log)
		log.Info("reloaded config", "path", path, "log_level", cfg.Log.Level)
	})
	if err != nil {
		return err
	}
	n.stopConfigWatch = stop
	return nil
}

// Stop shuts the listeners down, cancels every background task and
// closes the database. In-flight swaps are not waited for: they resume
// from persistence on the next start.
func (n *Node) Stop() error {
	if n.stopConfigWatch != nil {
		n.stopConfigWatch()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if n.apiServer != nil {
		_ = n.apiServer.Shutdown(shutdownCtx)
	}
	if n.p2pServer != nil {
		_ = n.p2pServer.Shutdown(shutdownCtx)
	}
	if n.cancel != nil {
		n.cancel()
	}
	if n.exec != nil {
		_ = n.exec.Wait()
	}
	return n.db.Close()
}

func (n *Node) serve(name string, srv *http.Server) {
	n.exec.Spawn(name, func(ctx context.Context) error {
		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()
		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
			return nil
		}
	})
}

func (n *Node) connectBackends() error {
	if url := n.config.Ethereum.NodeURL; url != "" {
		client, err := ethclient.Dial(url)
		if err != nil {
			return fmt.Errorf("node: connecting to ethereum node %s: %w", url, err)
		}
		chainID := new(big.Int).SetUint64(uint64(n.config.Ethereum.ChainID))
		n.ethereum = &ethereumBackend{
			connector: watchethereum.NewConnector(client, chainID),
			inspector: watchethereum.NewInspector(client),
		}
	}
	if url := n.config.Bitcoin.NodeURL; url != "" {
		client, err := newBitcoinRPC(n.config.Bitcoin)
		if err != nil {
			return err
		}
		params, err := swap.BitcoinParams(swap.BitcoinNetwork(n.config.Bitcoin.Network))
		if err != nil {
			return err
		}
		n.bitcoin = &bitcoinBackend{
			connector: watchbitcoin.NewConnector(client, params),
			inspector: watchbitcoin.NewInspector(client, params),
		}
	}
	return nil
}

// Identities implements network.IdentityProvider: the identities this
// node commits to when accepting req as the responder.
func (n *Node) Identities(ctx context.Context, req swap.Request) (alphaRedeem, betaRefund swap.Identity, err error) {
	alphaRedeem, err = n.secrets.RedeemIdentity(req.AlphaLedger, req.SwapID)
	if err != nil {
		return swap.Identity{}, swap.Identity{}, err
	}
	betaRefund, err = n.secrets.RefundIdentity(req.BetaLedger, req.SwapID)
	if err != nil {
		return swap.Identity{}, swap.Identity{}, err
	}
	return alphaRedeem, betaRefund, nil
}

// decideInbound answers an inbound SWAP request. Every request is
// persisted first; structurally unsupportable or invalid ones are then
// declined immediately, and anything else is installed as a Proposed
// swap and held open until the
// local user accepts or declines over HTTP — or the implicit timeout
// (the request's alpha expiry) declines it as Other (spec.md §5).
func (n *Node) decideInbound(ctx context.Context, from network.PeerID, req swap.Request) (swap.Accept, swap.Decline, bool) {
	rec := swap.Record{
		SwapID:           req.SwapID,
		Role:             swap.Responder,
		CounterpartyPeer: [32]byte(from),
		Request:          req,
		CreatedAt:        n.now(),
	}
	if err := n.db.InsertProposed(ctx, rec); err != nil {
		log.Error("node: persisting inbound swap failed", "swap_id", req.SwapID, "err", err)
		return swap.Accept{}, swap.Decline{SwapID: req.SwapID, Reason: swap.ReasonOther}, false
	}

	if req.UnsupportedCombination() {
		return n.declineInbound(ctx, req, swap.ReasonUnsupportedSwap)
	}
	if err := req.Validate(); err != nil {
		return n.declineInbound(ctx, req, swap.ReasonBadRateOrExpiry)
	}

	driver := statemachine.NewDriver(statemachine.Receive(req), n.onTransition)
	if err := n.swaps.Register(req.SwapID, driver); err != nil {
		driver.Close()
		return n.declineInbound(ctx, req, swap.ReasonOther)
	}

	decisions := n.negotiator.AwaitDecision(req.SwapID)
	defer n.negotiator.Forget(req.SwapID)

	timeout := time.NewTimer(req.AlphaExpiry.Sub(n.now()))
	defer timeout.Stop()

	select {
	case resp := <-decisions:
		// The HTTP accept/decline route already persisted the decision
		// and fed the driver; only the wire answer is assembled here.
		if resp.Accept != nil {
			return *resp.Accept, swap.Decline{}, true
		}
		if resp.Decline != nil {
			return swap.Accept{}, *resp.Decline, false
		}
		return swap.Accept{}, swap.Decline{SwapID: req.SwapID, Reason: swap.ReasonOther}, false
	case <-timeout.C:
	case <-ctx.Done():
	}

	decline := swap.Decline{SwapID: req.SwapID, Reason: swap.ReasonOther}
	_ = n.db.RecordDecline(context.Background(), req.SwapID, decline)
	_ = n.submitTo(req.SwapID, statemachine.ReceiveDecline{SwapID: req.SwapID, Decline: decline})
	return swap.Accept{}, decline, false
}

func (n *Node) declineInbound(ctx context.Context, req swap.Request, reason swap.DeclineReason) (swap.Accept, swap.Decline, bool) {
	decline := swap.Decline{SwapID: req.SwapID, Reason: reason}
	if err := n.db.RecordDecline(ctx, req.SwapID, decline); err != nil {
		log.Error("node: persisting decline failed", "swap_id", req.SwapID, "err", err)
	}
	return swap.Accept{}, decline, false
}

// onTransition is installed on every Driver. It launches the ledger
// watchers the moment a swap turns Accepted and tears a swap down once
// it is terminal.
func (n *Node) onTransition(before, after swap.State, _ statemachine.Event) {
	if before.Communication.Phase == swap.Proposed && after.Communication.Phase == swap.Accepted {
		cutoff := n.now()
		go n.startWatchers(after, cutoff)
	}
	if !before.Terminal() && after.Terminal() {
		go n.finalize(after)
	}
}

// resume reinstalls state machines for every accepted, unfinished swap
// and restarts their watchers from created_at, implementing boundary
// scenario S6: the next on-chain event after a restart is processed
// identically to how it would have been without one.
func (n *Node) resume(ctx context.Context) error {
	records, err := n.db.LoadNonTerminalAccepted(ctx)
	if err != nil {
		return err
	}
	for _, rec := range records {
		st := resumedState(rec)
		driver := statemachine.NewDriver(st, n.onTransition)
		if err := n.swaps.Register(rec.SwapID, driver); err != nil {
			driver.Close()
			continue
		}
		n.startWatchers(st, rec.CreatedAt)
		log.Info("resumed swap", "swap_id", rec.SwapID, "role", rec.Role, "created_at", rec.CreatedAt)
	}
	return nil
}

func resumedState(rec swap.Record) swap.State {
	return swap.State{
		SwapID:        rec.SwapID,
		Role:          rec.Role,
		Request:       rec.Request,
		Communication: swap.Communication{Phase: swap.Accepted, Accept: rec.Accept},
	}
}

// startWatchers spawns the four per-swap background tasks of spec.md
// §5: one watcher per ledger side plus one expiry timer per side (the
// communication handler already ran its course by the time a swap is
// Accepted).
func (n *Node) startWatchers(st swap.State, cutoff time.Time) {
	for _, side := range []statemachine.Side{statemachine.SideAlpha, statemachine.SideBeta} {
		side := side
		w, err := n.buildSideWatch(st, side, cutoff)
		if err != nil {
			log.Error("node: cannot watch ledger side", "swap_id", st.SwapID, "side", side, "err", err)
			_ = n.submitTo(st.SwapID, statemachine.DeserializationFailed{SwapID: st.SwapID, Cause: swap.NewError(swap.LedgerFailure, err)})
			continue
		}
		n.exec.Spawn(watchKey(st.SwapID, side), w.run)
		n.exec.Spawn(expiryKey(st.SwapID, side), n.expiryTask(st.SwapID, side, w.expiry))
	}
}

func (n *Node) expiryTask(id swap.ID, side statemachine.Side, expiry time.Time) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if wait := expiry.Sub(n.now()); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return n.submitTo(id, statemachine.ExpiryElapsed{SwapID: id, Side: side})
	}
}

func (n *Node) submitTo(id swap.ID, ev statemachine.Event) error {
	driver, ok := n.swaps.Driver(id)
	if !ok {
		return fmt.Errorf("node: no driver for swap %s", id)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return driver.Submit(ctx, ev)
}

// buildSideWatch binds one ledger side's sideWatch to the concrete
// backend for that side's ledger family.
func (n *Node) buildSideWatch(st swap.State, side statemachine.Side, cutoff time.Time) (*sideWatch, error) {
	p, err := paramsFor(st, side)
	if err != nil {
		return nil, err
	}
	appearance, err := appearancePattern(p, st.Request.SecretHash)
	if err != nil {
		return nil, err
	}

	secretHash := st.Request.SecretHash
	w := &sideWatch{
		swapID:     st.SwapID,
		side:       side,
		cutoff:     cutoff,
		expiry:     p.Expiry,
		appearance: appearance,
		submit: func(ctx context.Context, ev statemachine.Event) error {
			return n.submitTo(st.SwapID, ev)
		},
	}

	switch p.Ledger.Class {
	case swap.LedgerBitcoin:
		if n.bitcoin == nil {
			return nil, fmt.Errorf("node: no bitcoin node configured")
		}
		htlcAddr, err := htlc.BitcoinAddress(secretHash, p.Redeem, p.Refund, p.Expiry, p.Ledger.BitcoinNetwork)
		if err != nil {
			return nil, err
		}
		inspector := n.bitcoin.inspector
		w.watch = connectorRunner(n.bitcoin.connector)
		w.resolveFunding = func(ctx context.Context, txHash string) (swap.HTLCLocation, bool, error) {
			return inspector.Funding(ctx, txHash, htlcAddr.EncodeAddress(), p.Asset.Satoshis)
		}
		w.redeemSecret = func(ctx context.Context, txHash string) (swap.Secret, bool, error) {
			return inspector.RedeemSecret(ctx, txHash, secretHash)
		}

	case swap.LedgerEthereum:
		if n.ethereum == nil {
			return nil, fmt.Errorf("node: no ethereum node configured")
		}
		inspector := n.ethereum.inspector
		w.watch = connectorRunner(n.ethereum.connector)
		w.redeemSecret = func(ctx context.Context, txHash string) (swap.Secret, bool, error) {
			return inspector.RedeemSecret(ctx, txHash, secretHash)
		}
		if p.Asset.Class == swap.AssetErc20 {
			token := p.Asset.Contract
			quantity := p.Asset.Quantity
			// The deployment transaction carries no value for a token
			// HTLC; the amount check happens against the Transfer that
			// follows it.
			w.resolveFunding = func(ctx context.Context, txHash string) (swap.HTLCLocation, bool, error) {
				loc, _, err := inspector.Funding(ctx, txHash, nil)
				return loc, false, err
			}
			w.fundingPattern = func(loc swap.HTLCLocation) watch.TransactionPattern {
				tokenBytes := [20]byte(token)
				return watch.TransactionPattern{
					Class: watch.Ethereum,
					Ethereum: watch.EthereumPattern{
						ToAddress:    &tokenBytes,
						EventAddress: &tokenBytes,
						EventTopics:  [][32]byte{watchethereum.TransferTopic()},
					},
				}
			}
			w.checkFunding = func(ctx context.Context, txHash string, loc swap.HTLCLocation) (bool, bool, error) {
				return inspector.ERC20Funding(ctx, txHash, token, common.Address(loc.Address), quantity)
			}
		} else {
			w.resolveFunding = func(ctx context.Context, txHash string) (swap.HTLCLocation, bool, error) {
				return inspector.Funding(ctx, txHash, p.Asset.Quantity)
			}
		}

	default:
		return nil, fmt.Errorf("node: cannot watch ledger class %q", p.Ledger.Class)
	}

	return w, nil
}

// finalize durably marks a terminal swap completed, cancels its
// background tasks and drops it from the in-memory store.
func (n *Node) finalize(st swap.State) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if st.Communication.Phase == swap.Accepted {
		if err := n.db.MarkCompleted(ctx, st.SwapID, n.now()); err != nil {
			log.Error("node: marking swap completed failed", "swap_id", st.SwapID, "err", err)
		}
	}
	for _, side := range []statemachine.Side{statemachine.SideAlpha, statemachine.SideBeta} {
		n.exec.Cancel(watchKey(st.SwapID, side))
		n.exec.Cancel(expiryKey(st.SwapID, side))
	}
	n.swaps.Remove(st.SwapID)
	log.Info("swap finished", "swap_id", st.SwapID, "status", st.DerivedStatus())
}

func watchKey(id swap.ID, side statemachine.Side) string {
	return "watch/" + id.String() + "/" + side.String()
}

func expiryKey(id swap.ID, side statemachine.Side) string {
	return "expiry/" + id.String() + "/" + side.String()
}

// setupLogging points the root logger at stderr, optionally teeing
// into a size-rotated file.
func setupLogging(cfg LogConfig) {
	var sink io.Writer = os.Stderr
	if cfg.File != "" {
		sink = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		})
	}
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(sink, logLevel(cfg.Level), false)))
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return log.LevelTrace
	case "debug":
		return log.LevelDebug
	case "warn":
		return log.LevelWarn
	case "error":
		return log.LevelError
	default:
		return log.LevelInfo
	}
}

// loadOrCreateSeed reads the node's mnemonic backup, generating and
// persisting a fresh one on first start.
func loadOrCreateSeed(path string) (*seed.SecretSource, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return seed.FromMnemonic(strings.TrimSpace(string(data)), "")
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("node: reading seed file %s: %w", path, err)
	}

	mnemonic, root, err := seed.NewMnemonic()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(mnemonic+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("node: writing seed file %s: %w", path, err)
	}
	log.Warn("generated a new seed; back up the mnemonic file", "path", path)
	return seed.NewSecretSource(root), nil
}
