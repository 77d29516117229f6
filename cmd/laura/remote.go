package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/marcotidei/LAURACam/protocol"
	"github.com/marcotidei/LAURACam/reliable"
	"github.com/marcotidei/LAURACam/remote"
	"github.com/marcotidei/LAURACam/session"
)

func remoteCommand() *cli.Command {
	return &cli.Command{
		Name:  "remote",
		Usage: "Run the handheld remote",
		Description: `Connects to the gateway broker and accepts commands on stdin:

  start <id>   begin recording on one camera
  stop <id>    stop recording
  wake <id>    wake one camera, or "wake all"
  status <id>  request a fresh status report
  list         print every configured camera's state
  quit         exit`,
		Flags: commonFlags(),
		Action: func(c *cli.Context) error {
			cctx, err := newCommandContext(c)
			if err != nil {
				return err
			}
			defer cctx.Logger.Sync()
			return runRemote(cctx)
		},
	}
}

func runRemote(cctx *commandContext) error {
	cfg := cctx.Config

	tr, err := cctx.openLink("remote")
	if err != nil {
		return err
	}
	defer tr.Close()

	hooks := remote.Hooks{
		OnTimeout: func(id protocol.DeviceID, kind protocol.CommandKind) {
			fmt.Printf("device %d did not acknowledge %s\n", id, kind)
		},
		OnIdle: func() {
			cctx.Logger.Info("idle timeout reached")
		},
	}

	r := remote.New(remote.Config{
		DeviceID: cfg.DeviceID,
		Devices:  cfg.Devices,
		Thresholds: session.Thresholds{
			Stale:   cfg.StaleThreshold.Std(),
			Offline: cfg.OfflineThreshold.Std(),
		},
		Reliable: reliable.Config{
			MaxRetries:    cfg.MaxRetries,
			RetryInterval: cfg.RetryInterval.Std(),
			Timeout:       cfg.CommandTimeout.Std(),
		},
		IdleTimeout: cfg.IdleTimeout.Std(),
	}, tr, hooks, cctx.Logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go readCommands(ctx, cancel, r)

	cctx.Logger.Info("remote running",
		zap.Uint8("device", uint8(cfg.DeviceID)),
		zap.Int("cameras", len(cfg.Devices)))
	return r.Run(ctx)
}

func readCommands(ctx context.Context, cancel context.CancelFunc, r *remote.Remote) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		fields := strings.Fields(strings.ToLower(scanner.Text()))
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "quit", "exit":
			cancel()
			return
		case "list":
			printSnapshots(r.Snapshot())
			continue
		}

		if len(fields) != 2 {
			fmt.Println("usage: start|stop|wake|status <id>, or list")
			continue
		}

		var kind protocol.CommandKind
		switch fields[0] {
		case "start":
			kind = protocol.KindTriggerStart
		case "stop":
			kind = protocol.KindTriggerStop
		case "wake":
			kind = protocol.KindWakeUp
		case "status":
			kind = protocol.KindStatusRequest
		default:
			fmt.Printf("unknown command %q\n", fields[0])
			continue
		}

		id := protocol.BroadcastID
		if fields[1] != "all" {
			n, err := strconv.ParseUint(fields[1], 10, 8)
			if err != nil {
				fmt.Printf("bad device ID %q\n", fields[1])
				continue
			}
			id = protocol.DeviceID(n)
		}

		if err := r.Submit(id, kind); err != nil {
			fmt.Println("rejected:", err)
		}
	}
}

func printSnapshots(snaps []session.Snapshot) {
	for _, s := range snaps {
		line := fmt.Sprintf("cam %d  %-7s", s.ID, s.Connectivity)
		if s.Connectivity != session.ConnUnknown {
			line += fmt.Sprintf("  %-7s  batt %3d%%  rssi %4d dBm",
				s.Status.RecordingState, s.Status.BatteryLevel, s.Status.SignalQuality)
			if !s.Status.LastUpdated.IsZero() {
				line += fmt.Sprintf("  (%s ago)", time.Since(s.Status.LastUpdated).Round(time.Second))
			}
		}
		if s.Pending {
			line += fmt.Sprintf("  [%s pending]", s.PendingKind)
		}
		fmt.Println(line)
	}
}
