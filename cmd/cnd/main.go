// cnd is the COMIT network daemon: it negotiates RFC-003 atomic swaps
// with peers and drives them across Bitcoin and Ethereum-family
// ledgers by watching both chains and exposing the legal next actions
// to the user's wallets over HTTP.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"

	"github.com/comit-network/cnd/db"
	"github.com/comit-network/cnd/node"
	"github.com/comit-network/cnd/seed"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration `FILE`",
	}
	datadirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "data directory for the database, seed and logs",
	}
	httpAddrFlag = &cli.StringFlag{
		Name:  "http.addr",
		Usage: "listen address of the HTTP API",
	}
	p2pAddrFlag = &cli.StringFlag{
		Name:  "p2p.addr",
		Usage: "listen address for peer connections",
	}
	btcURLFlag = &cli.StringFlag{
		Name:  "bitcoin.url",
		Usage: "bitcoind RPC endpoint",
	}
	btcNetworkFlag = &cli.StringFlag{
		Name:  "bitcoin.network",
		Usage: "bitcoin network (mainnet, testnet, regtest)",
	}
	ethURLFlag = &cli.StringFlag{
		Name:  "ethereum.url",
		Usage: "ethereum JSON-RPC endpoint",
	}
	ethChainFlag = &cli.UintFlag{
		Name:  "ethereum.chain-id",
		Usage: "ethereum chain id",
	}
	verbosityFlag = &cli.StringFlag{
		Name:  "verbosity",
		Usage: "log level (trace, debug, info, warn, error)",
	}
)

func main() {
	app := &cli.App{
		Name:   "cnd",
		Usage:  "trust-minimized cross-chain atomic swaps",
		Flags:  []cli.Flag{configFlag, datadirFlag, httpAddrFlag, p2pAddrFlag, btcURLFlag, btcNetworkFlag, ethURLFlag, ethChainFlag, verbosityFlag},
		Action: run,
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "generate the node's seed without starting it",
				Flags:  []cli.Flag{configFlag, datadirFlag},
				Action: runInit,
			},
			{
				Name:   "swaps",
				Usage:  "list unfinished accepted swaps (node must be stopped)",
				Flags:  []cli.Flag{configFlag, datadirFlag},
				Action: runSwaps,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("cnd: %v", err))
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (node.Config, error) {
	cfg := node.DefaultConfig()
	if path := c.String(configFlag.Name); path != "" {
		loaded, err := node.LoadConfig(path)
		if err != nil {
			return node.Config{}, err
		}
		cfg = loaded
	}
	if c.IsSet(datadirFlag.Name) {
		cfg.DataDir = c.String(datadirFlag.Name)
	}
	if c.IsSet(httpAddrFlag.Name) {
		cfg.HTTP.ListenAddr = c.String(httpAddrFlag.Name)
	}
	if c.IsSet(p2pAddrFlag.Name) {
		cfg.P2P.ListenAddr = c.String(p2pAddrFlag.Name)
	}
	if c.IsSet(btcURLFlag.Name) {
		cfg.Bitcoin.NodeURL = c.String(btcURLFlag.Name)
	}
	if c.IsSet(btcNetworkFlag.Name) {
		cfg.Bitcoin.Network = c.String(btcNetworkFlag.Name)
	}
	if c.IsSet(ethURLFlag.Name) {
		cfg.Ethereum.NodeURL = c.String(ethURLFlag.Name)
	}
	if c.IsSet(ethChainFlag.Name) {
		cfg.Ethereum.ChainID = uint32(c.Uint(ethChainFlag.Name))
	}
	if c.IsSet(verbosityFlag.Name) {
		cfg.Log.Level = c.String(verbosityFlag.Name)
	}
	return cfg, nil
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	n, err := node.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := n.Start(ctx); err != nil {
		return err
	}
	if path := c.String(configFlag.Name); path != "" {
		if err := n.WatchConfigFile(path); err != nil {
			return err
		}
	}

	fmt.Println(color.GreenString("cnd is up"), "http:", cfg.HTTP.ListenAddr, "p2p:", cfg.P2P.ListenAddr)
	<-ctx.Done()
	fmt.Println(color.YellowString("shutting down"))
	return n.Stop()
}

func runInit(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	dataDir, err := cfg.EnsureDataDir()
	if err != nil {
		return err
	}

	path := filepath.Join(dataDir, "seed.mnemonic")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("seed already exists at %s", path)
	}

	mnemonic, _, err := seed.NewMnemonic()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(mnemonic+"\n"), 0o600); err != nil {
		return err
	}

	fmt.Println(color.GreenString("seed written to %s", path))
	fmt.Println(color.YellowString("back up this mnemonic; anyone holding it controls every swap key:"))
	fmt.Println(mnemonic)
	return nil
}

func runSwaps(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	dataDir, err := cfg.EnsureDataDir()
	if err != nil {
		return err
	}

	database, err := db.Open(filepath.Join(dataDir, "cnd.sqlite"))
	if err != nil {
		return err
	}
	defer database.Close()

	records, err := database.LoadNonTerminalAccepted(c.Context)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no unfinished swaps")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Swap", "Role", "Alpha", "Beta", "Peer", "Created"})
	for _, rec := range records {
		table.Append([]string{
			rec.SwapID.String(),
			rec.Role.String(),
			rec.Request.AlphaAsset.String(),
			rec.Request.BetaAsset.String(),
			hex.EncodeToString(rec.CounterpartyPeer[:8]) + "…",
			rec.CreatedAt.Format(time.RFC3339),
		})
	}
	table.Render()
	return nil
}
