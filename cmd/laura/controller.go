package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/marcotidei/LAURACam/camera"
	"github.com/marcotidei/LAURACam/camera/gopro"
	"github.com/marcotidei/LAURACam/camera/mock"
	"github.com/marcotidei/LAURACam/controller"
)

func controllerCommand() *cli.Command {
	flags := append(commonFlags(),
		&cli.BoolFlag{
			Name:  "mock-camera",
			Usage: "Use a simulated camera instead of a BLE GoPro",
		},
	)
	return &cli.Command{
		Name:  "controller",
		Usage: "Run the camera-side controller",
		Description: `Connects to the gateway broker, answers trigger and status commands
from remotes, and drives the local GoPro over BLE.`,
		Flags: flags,
		Action: func(c *cli.Context) error {
			cctx, err := newCommandContext(c)
			if err != nil {
				return err
			}
			defer cctx.Logger.Sync()
			return runController(cctx, c.Bool("mock-camera"))
		},
	}
}

func runController(cctx *commandContext, mockCamera bool) error {
	cfg := cctx.Config

	tr, err := cctx.openLink("controller")
	if err != nil {
		return err
	}
	defer tr.Close()

	var adapter camera.Adapter
	if mockCamera {
		adapter = mock.New()
	} else {
		adapter = gopro.New(cfg.Camera.Identifier, cctx.Logger)
	}
	defer adapter.Close()

	ctrl := controller.New(controller.Config{
		DeviceID:          cfg.DeviceID,
		HeartbeatInterval: cfg.HeartbeatInterval.Std(),
		FreshnessWindow:   cfg.FreshnessWindow.Std(),
		WakeTimeout:       cfg.Camera.WakeTimeout.Std(),
		IdleTimeout:       cfg.IdleTimeout.Std(),
	}, tr, adapter, cctx.Logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cctx.Logger.Info("controller running",
		zap.Uint8("device", uint8(cfg.DeviceID)),
		zap.Bool("mock", mockCamera))
	return ctrl.Run(ctx)
}
