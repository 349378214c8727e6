package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"PriceHistory/internal/model"
)

var exchangeCmd = &cobra.Command{
	Use:   "exchange",
	Short: "Manage exchanges and boards",
}

var exchangeAddCmd = &cobra.Command{
	Use:   "add SYMBOL NAME",
	Short: "Register an exchange, or a board with --parent",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		e := model.Exchange{Symbol: args[0], Name: args[1]}
		if parent, _ := cmd.Flags().GetString("parent"); parent != "" {
			p, err := store.FindExchange(ctx, parent, 0)
			if err != nil {
				return err
			}
			e.ParentID = p.ID
		}
		id, err := store.AddExchange(ctx, e)
		if err != nil {
			return err
		}
		fmt.Printf("exchange %s added (id %d)\n", e.Symbol, id)
		return nil
	},
}

var exchangeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List exchanges with their boards",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		tops, err := store.TopExchanges(ctx)
		if err != nil {
			return err
		}
		for _, e := range tops {
			fmt.Printf("%-8s %s\n", e.Symbol, e.Name)
			boards, err := store.Boards(ctx, e.ID)
			if err != nil {
				return err
			}
			for _, b := range boards {
				fmt.Printf("  %-6s %s\n", b.Symbol, b.Name)
			}
		}
		return nil
	},
}

var productCmd = &cobra.Command{
	Use:   "product",
	Short: "Manage the product catalog",
}

var productAddCmd = &cobra.Command{
	Use:     "add SYMBOL",
	Short:   "Register a product",
	Example: "  pricehist product add 000001 --suffix .SZ --exchange SZSE --board A",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		name, _ := flags.GetString("name")
		suffix, _ := flags.GetString("suffix")
		exchange, _ := flags.GetString("exchange")
		board, _ := flags.GetString("board")

		ctx := context.Background()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		p := model.Product{Symbol: args[0], Name: name, Suffix: suffix}
		if exchange != "" {
			ex, err := store.FindExchange(ctx, exchange, 0)
			if err != nil {
				return err
			}
			p.ExchangeID = ex.ID
			if board != "" {
				b, err := store.FindExchange(ctx, board, ex.ID)
				if err != nil {
					return err
				}
				p.BoardID = b.ID
			}
		} else if board != "" {
			return fmt.Errorf("--board needs --exchange")
		}

		id, err := store.AddProduct(ctx, p)
		if err != nil {
			return err
		}
		fmt.Printf("product %s added (id %d, provider symbol %s)\n", p.Symbol, id, p.ProviderSymbol())
		return nil
	},
}

func init() {
	exchangeAddCmd.Flags().String("parent", "", "parent exchange symbol; makes this a board")
	exchangeCmd.AddCommand(exchangeAddCmd, exchangeListCmd)

	f := productAddCmd.Flags()
	f.String("name", "", "display name")
	f.String("suffix", "", "provider symbol suffix, e.g. .SZ")
	f.String("exchange", "", "exchange symbol")
	f.String("board", "", "board symbol under --exchange")
	productCmd.AddCommand(productAddCmd)
}
