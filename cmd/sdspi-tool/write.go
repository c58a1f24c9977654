package main

import (
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sdspi/sdspi"
)

func newWriteCmd() *cobra.Command {
	var inPath string

	cmd := &cobra.Command{
		Use:   "write <start-block>",
		Short: "Write a file's contents to one or more blocks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return err
			}

			in, err := os.Open(inPath)
			if err != nil {
				return err
			}
			defer in.Close()

			var blocks []sdspi.Block
			for {
				var b sdspi.Block
				n, err := io.ReadFull(in, b[:])
				if n > 0 {
					blocks = append(blocks, b)
				}
				if err == io.EOF || err == io.ErrUnexpectedEOF {
					break
				}
				if err != nil {
					return err
				}
			}
			if len(blocks) == 0 {
				logger.Warn("nothing to write: input is empty")
				return nil
			}

			card, bridge, err := openCard()
			if err != nil {
				return err
			}
			defer bridge.Close()

			if err := card.WriteBlocks(blocks, sdspi.BlockIdx(start)); err != nil {
				return err
			}

			logger.Info("write complete", "blocks", len(blocks), "start", start, "in", inPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&inPath, "in", "i", "", "input file path")
	cmd.MarkFlagRequired("in")
	return cmd
}
