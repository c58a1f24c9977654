package main

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sdspi/sdspi"
)

func newReadCmd() *cobra.Command {
	var outPath string
	var count int

	cmd := &cobra.Command{
		Use:   "read <start-block>",
		Short: "Read one or more blocks to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return err
			}

			card, bridge, err := openCard()
			if err != nil {
				return err
			}
			defer bridge.Close()

			blocks := make([]sdspi.Block, count)
			if err := card.ReadBlocks(blocks, sdspi.BlockIdx(start), "sdspi-tool read"); err != nil {
				return err
			}

			out, err := os.Create(outPath)
			if err != nil {
				return err
			}
			defer out.Close()

			for i := range blocks {
				if _, err := out.Write(blocks[i][:]); err != nil {
					return err
				}
			}

			logger.Info("read complete", "blocks", count, "start", start, "out", outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file path")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of blocks to read")
	cmd.MarkFlagRequired("out")
	return cmd
}
