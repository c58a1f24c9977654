package main

import "github.com/spf13/cobra"

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print card type and capacity",
		RunE: func(cmd *cobra.Command, args []string) error {
			card, bridge, err := openCard()
			if err != nil {
				return err
			}
			defer bridge.Close()

			cardType, err := card.GetCardType()
			if err != nil {
				return err
			}
			blocks, err := card.NumBlocks()
			if err != nil {
				return err
			}
			bytes, err := card.NumBytes()
			if err != nil {
				return err
			}
			erase, err := card.EraseSingleBlockEnabled()
			if err != nil {
				return err
			}

			logger.Info("card acquired",
				"type", cardType,
				"blocks", uint32(blocks),
				"bytes", bytes,
				"erase_single_block", erase,
			)
			return nil
		},
	}
}
