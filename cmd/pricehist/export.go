package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"PriceHistory/internal/exporter"
	"PriceHistory/internal/model"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	Short:   "Write stored bars of one period to a Parquet file",
	Example: "  pricehist export -p d -o bars.parquet --symbol 000001",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		period, _ := cmd.Flags().GetString("period")
		out, _ := cmd.Flags().GetString("output")
		symbol, _ := cmd.Flags().GetString("symbol")

		g, err := model.ParseGranularity(period)
		if err != nil {
			return err
		}
		ctx := context.Background()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := exporter.Export(ctx, store, g, symbol, out)
		if err != nil {
			return err
		}
		fmt.Printf("exported %d %s bars to %s\n", n, g, out)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("period", "p", "d", "period to export: d, w or m")
	exportCmd.Flags().StringP("output", "o", "bars.parquet", "output file")
	exportCmd.Flags().String("symbol", "", "export a single product")
}
