// Package cli wires the commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/kahva/goferry/config"
	"github.com/kahva/goferry/core"
	"github.com/kahva/goferry/logger"
	"github.com/kahva/goferry/nettest"
	"github.com/kahva/goferry/styles"
	"github.com/urfave/cli/v3"
)

const defaultDir = "goferry/received"

func New(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:    "goferry",
		Usage:   "a p2p local area network file and folder transfer cli",
		Version: core.VERSION,
		Action:  bannerAction,
		Commands: []*cli.Command{
			sendCommand(cfg),
			receiveCommand(cfg),
			benchCommand(cfg),
		},
	}
}

func bannerAction(ctx context.Context, cmd *cli.Command) error {
	figure.NewFigure("goferry", "", true).Print()
	fmt.Println()

	return cli.ShowAppHelp(cmd)
}

func defaultFlags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "addr",
			Aliases: []string{"a"},
			Value:   cfg.TransferAddr,
		},
		&cli.StringFlag{
			Name:    "discovery",
			Aliases: []string{"b"},
			Value:   cfg.DiscoveryAddr,
		},
		&cli.StringFlag{
			Name:    "dir",
			Aliases: []string{"d"},
			Value:   cfg.Dir,
		},
		&cli.StringFlag{
			Name:  "log",
			Value: cfg.LogPath,
		},
	}
}

func clientOptions(cfg *config.Config, cmd *cli.Command) core.ClientOptions {
	logPath := cmd.String("log")
	if logPath == "" {
		if p, err := logger.LogPath(); err == nil {
			logPath = p
		}
	}

	return core.ClientOptions{
		Addr:          cmd.String("addr"),
		DiscoveryAddr: cmd.String("discovery"),
		Dir:           cmd.String("dir"),
		ChunkSize:     cfg.ChunkSize,
		AckTimeout:    cfg.AckTimeout,
		LogPath:       logPath,
	}
}

func sendCommand(cfg *config.Config) *cli.Command {
	flags := append(defaultFlags(cfg),
		&cli.StringFlag{
			Name:  "to",
			Usage: "skip discovery and dial this address directly",
		},
	)

	return &cli.Command{
		Name:      "send",
		Usage:     "send a file or folder to another device",
		ArgsUsage: "<path>",
		Flags:     flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			root := cmd.Args().First()
			if root == "" {
				return errors.New("send needs a file or folder path")
			}

			c := core.NewSenderClient(clientOptions(cfg, cmd))
			return c.StartSender(ctx, root, cmd.String("to"))
		},
	}
}

func receiveCommand(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "receive",
		Usage: "announce presence and receive transfers",
		Flags: defaultFlags(cfg),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			opts := clientOptions(cfg, cmd)
			if opts.Dir == "" {
				opts.Dir = filepath.Join(homeDir(), defaultDir)
			}

			c := core.NewReceiverClient(opts)

			errch := make(chan error, 1)
			go func() {
				errch <- c.StartReceiver(ctx)
			}()

			select {
			case <-ctx.Done():
				return nil
			case err := <-errch:
				return err
			}
		},
	}
}

func benchCommand(cfg *config.Config) *cli.Command {
	addrFlag := &cli.StringFlag{
		Name:    "addr",
		Aliases: []string{"a"},
		Value:   cfg.BenchAddr,
	}

	return &cli.Command{
		Name:  "bench",
		Usage: "measure raw LAN throughput between two devices",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the benchmark sink",
				Flags: []cli.Flag{addrFlag},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					log := logger.New()
					log.InitMultiWriter(cfg.LogPath)

					return nettest.NewServer(log).Start(ctx, cmd.String("addr"))
				},
			},
			{
				Name:  "run",
				Usage: "blast bytes at a benchmark sink",
				Flags: []cli.Flag{
					addrFlag,
					&cli.IntFlag{
						Name:  "size",
						Value: cfg.BenchSize,
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					log := logger.New()
					log.Init(cfg.LogPath)

					client := nettest.NewClient(cmd.Int("size"), log)
					res, err := client.Run(ctx, cmd.String("addr"))
					if err != nil {
						return err
					}

					fmt.Println(styles.SUCCESS.Render(fmt.Sprintf(
						"%.2f MB/s over %s",
						res.Throughput(),
						res.Elapsed.Round(10*time.Millisecond),
					)))
					return nil
				},
			},
		},
	}
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./"
	}
	return home
}
