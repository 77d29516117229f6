package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/marcotidei/LAURACam/camera/mock"
	"github.com/marcotidei/LAURACam/controller"
	"github.com/marcotidei/LAURACam/link/memlink"
	"github.com/marcotidei/LAURACam/protocol"
	"github.com/marcotidei/LAURACam/reliable"
	"github.com/marcotidei/LAURACam/remote"
)

func benchCommand() *cli.Command {
	return &cli.Command{
		Name:  "bench",
		Usage: "Exercise the link end to end over a simulated lossy channel",
		Description: `Runs one remote and a set of simulated cameras over an in-memory
medium, triggers every camera, and reports what the remote observed.
Useful for tuning retry settings against an expected loss rate.`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "cameras",
				Value: 3,
				Usage: "Number of simulated cameras",
			},
			&cli.Float64Flag{
				Name:  "loss",
				Value: 0.2,
				Usage: "Fraction of frames the channel drops",
			},
			&cli.Float64Flag{
				Name:  "dup",
				Value: 0.1,
				Usage: "Fraction of frames the channel duplicates",
			},
			&cli.DurationFlag{
				Name:  "settle",
				Value: 10 * time.Second,
				Usage: "How long to wait for commands and heartbeats",
			},
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "Enable debug logging",
			},
		},
		Action: func(c *cli.Context) error {
			logger := zap.NewNop()
			if c.Bool("debug") {
				var err error
				if logger, err = zap.NewDevelopment(); err != nil {
					return err
				}
			}
			return runBench(c.Int("cameras"), c.Float64("loss"), c.Float64("dup"),
				c.Duration("settle"), logger)
		},
	}
}

func runBench(cameras int, loss, dup float64, settle time.Duration, logger *zap.Logger) error {
	hub := memlink.NewHub()
	hub.SetLossRate(loss)
	hub.SetDupRate(dup)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	devices := make([]protocol.DeviceID, 0, cameras)
	cams := make([]*mock.Camera, 0, cameras)
	for i := 0; i < cameras; i++ {
		id := protocol.DeviceID(i + 1)
		devices = append(devices, id)

		cam := mock.New()
		cams = append(cams, cam)
		ctrl := controller.New(controller.Config{
			DeviceID:          id,
			HeartbeatInterval: time.Second,
		}, hub.Attach(), cam, logger)
		go ctrl.Run(ctx)
	}

	timeouts := 0
	r := remote.New(remote.Config{
		DeviceID: 0x10,
		Devices:  devices,
		Reliable: reliable.Config{
			MaxRetries:    4,
			RetryInterval: 200 * time.Millisecond,
			Timeout:       5 * time.Second,
		},
	}, hub.Attach(), remote.Hooks{
		OnTimeout: func(id protocol.DeviceID, kind protocol.CommandKind) {
			timeouts++
			fmt.Printf("device %d lost %s\n", id, kind)
		},
	}, logger)
	go r.Run(ctx)

	fmt.Printf("bench: %d cameras, %.0f%% loss, %.0f%% duplication\n",
		cameras, loss*100, dup*100)

	for _, id := range devices {
		if err := r.Submit(id, protocol.KindTriggerStart); err != nil {
			fmt.Printf("device %d rejected: %v\n", id, err)
		}
	}

	time.Sleep(settle)

	printSnapshots(r.Snapshot())
	recording := 0
	for _, cam := range cams {
		if cam.Recording() {
			recording++
		}
	}
	fmt.Printf("recording: %d/%d cameras, %d command timeouts\n",
		recording, cameras, timeouts)
	return nil
}
