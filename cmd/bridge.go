// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caldera Works

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/calderaworks/spastat/pkg/balboa"
	"github.com/calderaworks/spastat/pkg/homie"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var bridgeConfigPath string

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Bridge the spa to MQTT using the Homie convention",
	Long: `Run a long-lived bridge that announces the spa as a Homie v4
device on MQTT, mirrors status broadcasts into retained property topics,
and translates .../set messages back into bus commands.

Configuration comes from a TOML file (--config) with environment
overrides:
  SPASTAT_MQTT_BROKER, SPASTAT_MQTT_USERNAME, SPASTAT_MQTT_PASSWORD

The bus connection uses the root --port/--host/--url flags.`,
	RunE: runBridge,
}

func init() {
	bridgeCmd.Flags().StringVarP(&bridgeConfigPath, "config", "c", "", "TOML configuration file")
	rootCmd.AddCommand(bridgeCmd)
}

// bridgeConfig is the bridge's TOML schema.
type bridgeConfig struct {
	Broker     string `toml:"broker"`
	Username   string `toml:"username"`
	Password   string `toml:"password"`
	ClientID   string `toml:"client_id"`
	BaseTopic  string `toml:"base_topic"`
	DeviceID   string `toml:"device_id"`
	DeviceName string `toml:"device_name"`
	Channel    uint8  `toml:"channel"`
}

func defaultBridgeConfig() bridgeConfig {
	return bridgeConfig{
		Broker:     "tcp://localhost:1883",
		ClientID:   "spastat",
		DeviceID:   "spa",
		DeviceName: "Spa",
	}
}

// loadBridgeConfig layers defaults, the optional TOML file, and
// environment overrides for the broker and credentials.
func loadBridgeConfig(path string) (bridgeConfig, error) {
	cfg := defaultBridgeConfig()

	if path != "" {
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return bridgeConfig{}, fmt.Errorf("load bridge config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return bridgeConfig{}, fmt.Errorf("unknown config keys: %v", undecoded)
		}
	}

	if v := os.Getenv("SPASTAT_MQTT_BROKER"); v != "" {
		cfg.Broker = v
	}
	if v := os.Getenv("SPASTAT_MQTT_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("SPASTAT_MQTT_PASSWORD"); v != "" {
		cfg.Password = v
	}

	if strings.TrimSpace(cfg.DeviceID) == "" {
		return bridgeConfig{}, fmt.Errorf("device_id must not be empty")
	}
	return cfg, nil
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, err := loadBridgeConfig(bridgeConfigPath)
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	log := logrus.WithField("component", "bridge")
	log.WithField("connection", connInfo).Info("bus connected")

	var spa *balboa.Client
	if cfg.Channel != 0 {
		spa = balboa.NewClientWithChannel(conn, cfg.Channel)
	} else {
		spa = balboa.NewClient(conn)
	}

	bridge := homie.NewBridge(spa, cfg.DeviceID, cfg.DeviceName)
	if cfg.BaseTopic != "" {
		bridge.Device().SetBaseTopic(cfg.BaseTopic)
	}

	willTopic, willPayload := bridge.Device().Will()
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetWill(willTopic, willPayload, 1, true)
	opts.SetOnConnectHandler(func(mq mqtt.Client) {
		// Runs on the first connect and every reconnect; the device tree
		// and /set subscriptions must be re-announced each time.
		if err := bridge.Connect(mq); err != nil {
			log.WithError(err).Error("device announcement failed")
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.WithError(err).Warn("mqtt connection lost")
	})

	mq := mqtt.NewClient(opts)
	if token := mq.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	defer mq.Disconnect(250)
	defer bridge.Disconnect()

	log.WithField("broker", cfg.Broker).Info("mqtt connected")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	err = spa.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info("shutting down")
		return nil
	}
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("bus connection closed: %w", err)
	}
	return err
}
