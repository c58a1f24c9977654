// Command sdspi-tool talks to an SD/MMC card over a serial-bridge transport,
// for bench testing a card and bridge firmware without writing a host
// program.
package main

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/sdspi/sdspi"
	"github.com/sdspi/sdspi/transport/serialbridge"
)

var (
	cfgPath string
	logger  = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
)

func main() {
	root := &cobra.Command{
		Use:   "sdspi-tool",
		Short: "Bench tool for an SD/MMC card reached over a serial bridge",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a YAML config file")

	root.AddCommand(newInfoCmd())
	root.AddCommand(newReadCmd())
	root.AddCommand(newWriteCmd())
	root.AddCommand(newDDCmd())

	if err := root.Execute(); err != nil {
		logger.Fatal(err)
	}
}

// openCard loads config and dials the serial bridge, returning a ready
// sdspi.SdCard. The card itself is not acquired until first use.
func openCard() (*sdspi.SdCard, *serialbridge.Bridge, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, nil, err
	}

	bridge, err := serialbridge.Open(cfg.Device, cfg.BaudRate)
	if err != nil {
		return nil, nil, err
	}

	opts := sdspi.DefaultAcquireOpts()
	opts.UseCRC = cfg.UseCRC

	card := sdspi.NewWithOptions(bridge, bridge, bridge, opts)
	card.SetTracer(func(event string) {
		logger.Debug("card event", "event", event)
	})
	return card, bridge, nil
}
