package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammstate/internal/config"
)

func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Discover pools and print their state",
		RunE:  runFetch,
	}
	discoveryFlags(cmd)
	stateFlags(cmd)
	return cmd
}

func runFetch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	reg, err := a.discover(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, p := range reg.AllPools() {
		fmt.Fprintln(out, p.LogSummary())
	}
	fmt.Fprint(out, reg.LogSummary())

	if a.cfg.SnapshotsOut == "" && a.cfg.StateBackend == config.BackendFile {
		return nil
	}
	b, err := openBackend(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer b.close()
	return writeSnapshots(ctx, reg, b.snapshots)
}

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a swap against one pool",
		RunE:  runQuote,
	}
	discoveryFlags(cmd)
	cmd.Flags().String("token", "", "token in, or token out with --exact-out")
	cmd.Flags().String("amount", "", "amount in base units")
	cmd.Flags().Bool("exact-out", false, "treat --amount as the desired output and compute the input")
	return cmd
}

func runQuote(cmd *cobra.Command, _ []string) error {
	tokenFlag, _ := cmd.Flags().GetString("token")
	amountFlag, _ := cmd.Flags().GetString("amount")
	exactOut, _ := cmd.Flags().GetBool("exact-out")

	if !common.IsHexAddress(tokenFlag) {
		return fmt.Errorf("invalid token: %q", tokenFlag)
	}
	token := common.HexToAddress(tokenFlag)
	amount, ok := new(big.Int).SetString(amountFlag, 10)
	if !ok {
		return fmt.Errorf("invalid amount: %q", amountFlag)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd, nil)
	if err != nil {
		return err
	}
	defer a.Close()
	if len(a.chain.Pools) != 1 {
		return fmt.Errorf("quote needs exactly one pool, got %d", len(a.chain.Pools))
	}

	p, err := a.fetcher.Fetch(ctx, a.chain.Pools[0], a.block())
	if err != nil {
		return err
	}
	a.logger.Debug("quote pool", zap.String("summary", p.LogSummary()))

	out := cmd.OutOrStdout()
	if exactOut {
		amountIn, err := p.CalculateInput(token, amount)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "pool: %s\namount_out: %s\namount_in: %s\n", p.ID(), amount, amountIn)
		return nil
	}
	amountOut, err := p.CalculateOutput(token, amount)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "pool: %s\namount_in: %s\namount_out: %s\n", p.ID(), amount, amountOut)
	return nil
}
