package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/marcotidei/LAURACam/config"
	"github.com/marcotidei/LAURACam/link"
	"github.com/marcotidei/LAURACam/link/mqttlink"
	"github.com/marcotidei/LAURACam/protocol"
)

// commandContext bundles what every subcommand needs: the merged
// configuration and a logger matching the --debug flag.
type commandContext struct {
	Config *config.Config
	Logger *zap.Logger
}

func newCommandContext(c *cli.Context) (*commandContext, error) {
	var logger *zap.Logger
	var err error
	if c.Bool("debug") {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	cfg := config.Default()
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	}
	if c.IsSet("id") {
		cfg.DeviceID = protocol.DeviceID(c.Uint("id"))
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return &commandContext{Config: cfg, Logger: logger}, nil
}

// openLink connects the gateway bridge using the MQTT section of the config.
func (ctx *commandContext) openLink(role string) (link.Transport, error) {
	return mqttlink.New(mqttlink.Options{
		BrokerURL: ctx.Config.MQTT.BrokerURL,
		Network:   ctx.Config.MQTT.Network,
		ClientID:  fmt.Sprintf("%s-%s", ctx.Config.MQTT.ClientID, role),
		Username:  ctx.Config.MQTT.Username,
		Password:  ctx.Config.MQTT.Password,
	}, ctx.Logger)
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the YAML configuration file",
		},
		&cli.UintFlag{
			Name:  "id",
			Usage: "Device ID, overriding the configuration file",
		},
		&cli.BoolFlag{
			Name:    "debug",
			Aliases: []string{"d"},
			Usage:   "Enable debug logging",
		},
	}
}
