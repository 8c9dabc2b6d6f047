// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caldera Works

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/calderaworks/spastat/pkg/balboa"
	"github.com/spf13/cobra"
)

var (
	controlTimeout time.Duration
	controlChannel uint8
	controlScale   string
	controlUse24h  bool
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Send one-shot commands to the spa board",
	Long: `Send a single command to the board and wait for the result.

The client joins channel arbitration (or assumes a channel with
--channel, as spa WiFi modules do), queues the command, and transmits
it on the next bus grant. Toggle and set commands wait for the next
changed status broadcast; request commands wait for the matching
response message.

Supports serial, TCP, and WebSocket connections.`,
}

var controlToggleCmd = &cobra.Command{
	Use:   "toggle <item>",
	Short: "Toggle an output one step",
	Long: `Toggle one output by a single step. Toggles are edge-triggered:
a two-speed pump cycles off -> low -> high -> off, one step per command.

Items: priming, pump-1..pump-6, blower, mister, light-1, light-2,
aux-1, aux-2, hold, temperature-range, heat-mode.`,
	Args: cobra.ExactArgs(1),
	RunE: runControlToggle,
}

var controlSetTempCmd = &cobra.Command{
	Use:   "set-temperature <degrees>",
	Short: "Set the target temperature",
	Long: `Set the target temperature. The scale defaults to whatever the
board currently reports; override with --scale.`,
	Args: cobra.ExactArgs(1),
	RunE: runControlSetTemp,
}

var controlSetTimeCmd = &cobra.Command{
	Use:   "set-time <HH:MM>",
	Short: "Set the board clock",
	Args:  cobra.ExactArgs(1),
	RunE:  runControlSetTime,
}

var controlRequestCmd = &cobra.Command{
	Use:   "request <category>",
	Short: "Request a settings category and print the response",
	Long: `Request one settings category from the board and print the
response. Categories: configuration, information, filter-cycles,
preferences, fault-log.`,
	Args: cobra.ExactArgs(1),
	RunE: runControlRequest,
}

func init() {
	controlCmd.PersistentFlags().DurationVar(&controlTimeout, "timeout", 30*time.Second, "Give up after this long")
	controlCmd.PersistentFlags().Uint8Var(&controlChannel, "channel", 0, "Assume this channel is already assigned (skip arbitration)")
	controlSetTempCmd.Flags().StringVar(&controlScale, "scale", "", "Temperature scale (fahrenheit or celsius); default is the board's")
	controlSetTimeCmd.Flags().BoolVar(&controlUse24h, "24h", false, "Also switch the board clock to 24-hour display")
	controlCmd.AddCommand(controlToggleCmd, controlSetTempCmd, controlSetTimeCmd, controlRequestCmd)
	rootCmd.AddCommand(controlCmd)
}

// itemCodes maps CLI item names to their toggle codes.
var itemCodes = map[string]balboa.ItemCode{
	"priming":           balboa.ItemPrimingMode,
	"pump-1":            balboa.ItemPump1,
	"pump-2":            balboa.ItemPump2,
	"pump-3":            balboa.ItemPump3,
	"pump-4":            balboa.ItemPump4,
	"pump-5":            balboa.ItemPump5,
	"pump-6":            balboa.ItemPump6,
	"blower":            balboa.ItemBlower,
	"mister":            balboa.ItemMister,
	"light-1":           balboa.ItemLight1,
	"light-2":           balboa.ItemLight2,
	"aux-1":             balboa.ItemAux1,
	"aux-2":             balboa.ItemAux2,
	"hold":              balboa.ItemHoldMode,
	"temperature-range": balboa.ItemTemperatureRange,
	"heat-mode":         balboa.ItemHeatMode,
}

// oneShot runs the client until act's completion condition fires or the
// timeout expires. act receives the client before the receive loop
// starts; it registers observers and enqueues its command, and the first
// string sent on done becomes the printed result.
func oneShot(act func(c *balboa.Client, done chan<- string)) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	var client *balboa.Client
	if controlChannel != 0 {
		client = balboa.NewClientWithChannel(conn, controlChannel)
	} else {
		client = balboa.NewClient(conn)
	}

	done := make(chan string, 1)
	act(client, done)

	ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- client.Run(ctx) }()

	fmt.Printf("Connection: %s\n", connInfo)

	select {
	case result := <-done:
		fmt.Println(result)
		return nil
	case err := <-runErr:
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("connection closed before the board responded")
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("timed out after %s (state %s)", controlTimeout, client.State())
		}
		return err
	}
}

// reportNextChange makes the first changed status broadcast after the
// queue drains complete the command.
func reportNextChange(c *balboa.Client, done chan<- string) {
	c.OnStatus(func(snap balboa.StatusSnapshot, changed bool) {
		if !changed || c.QueueLen() > 0 {
			return
		}
		select {
		case done <- snap.String():
		default:
		}
	})
}

func runControlToggle(cmd *cobra.Command, args []string) error {
	item, ok := itemCodes[strings.ToLower(args[0])]
	if !ok {
		return fmt.Errorf("unknown item %q", args[0])
	}

	return oneShot(func(c *balboa.Client, done chan<- string) {
		reportNextChange(c, done)
		c.Toggle(item)
	})
}

func runControlSetTemp(cmd *cobra.Command, args []string) error {
	degrees, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid temperature %q", args[0])
	}

	var scale balboa.TemperatureScale
	haveScale := false
	switch strings.ToLower(controlScale) {
	case "":
	case "fahrenheit", "f":
		scale, haveScale = balboa.ScaleFahrenheit, true
	case "celsius", "c":
		scale, haveScale = balboa.ScaleCelsius, true
	default:
		return fmt.Errorf("unknown scale %q", controlScale)
	}

	return oneShot(func(c *balboa.Client, done chan<- string) {
		queued := false
		c.OnStatus(func(snap balboa.StatusSnapshot, changed bool) {
			// The board's active scale decides the wire units, so the
			// first broadcast has to arrive before the command can be
			// built when no scale was forced.
			if !queued {
				queued = true
				s := snap.Scale()
				if haveScale {
					s = scale
				}
				c.SetTemperature(degrees, s)
				return
			}
			if !changed || c.QueueLen() > 0 {
				return
			}
			select {
			case done <- snap.String():
			default:
			}
		})
	})
}

func runControlSetTime(cmd *cobra.Command, args []string) error {
	clock, err := time.Parse("15:04", args[0])
	if err != nil {
		return fmt.Errorf("invalid time %q (want HH:MM)", args[0])
	}

	return oneShot(func(c *balboa.Client, done chan<- string) {
		reportNextChange(c, done)
		mode := balboa.Clock12Hour
		if controlUse24h {
			mode = balboa.Clock24Hour
		}
		c.SetTime(uint8(clock.Hour()), uint8(clock.Minute()), mode)
	})
}

func runControlRequest(cmd *cobra.Command, args []string) error {
	category := strings.ToLower(args[0])

	var enqueue func(*balboa.Client)
	var matches func(balboa.Message) bool
	switch category {
	case "configuration":
		enqueue = (*balboa.Client).RequestConfiguration
		matches = func(m balboa.Message) bool { _, ok := m.(balboa.ConfigurationResponse); return ok }
	case "information":
		enqueue = (*balboa.Client).RequestInformation
		matches = func(m balboa.Message) bool { _, ok := m.(balboa.InformationResponse); return ok }
	case "filter-cycles":
		enqueue = (*balboa.Client).RequestFilterCycles
		matches = func(m balboa.Message) bool { _, ok := m.(balboa.FilterCycles); return ok }
	case "preferences":
		enqueue = (*balboa.Client).RequestPreferences
		matches = func(m balboa.Message) bool { _, ok := m.(balboa.PreferencesResponse); return ok }
	case "fault-log":
		enqueue = func(c *balboa.Client) { c.RequestFaultLog(0xFF) }
		matches = func(m balboa.Message) bool { _, ok := m.(balboa.FaultLogResponse); return ok }
	default:
		return fmt.Errorf("unknown category %q", args[0])
	}

	return oneShot(func(c *balboa.Client, done chan<- string) {
		c.OnMessage(func(m balboa.Message) {
			if !matches(m) {
				return
			}
			select {
			case done <- describeResponse(m):
			default:
			}
		})
		enqueue(c)
	})
}

// describeResponse renders a settings response in full, unlike the
// monitor's one-line summaries.
func describeResponse(m balboa.Message) string {
	switch mm := m.(type) {
	case balboa.ConfigurationResponse:
		cfg := balboa.ParseConfiguration(mm)
		var b strings.Builder
		fmt.Fprintf(&b, "Configuration (% X):\n", mm.Data)
		for i, present := range cfg.Pumps {
			fmt.Fprintf(&b, "  pump %d: %v\n", i+1, present)
		}
		fmt.Fprintf(&b, "  lights: %v %v\n", cfg.Lights[0], cfg.Lights[1])
		fmt.Fprintf(&b, "  circ pump: %v, blower: %v, mister: %v\n", cfg.CircPump, cfg.Blower, cfg.Mister)
		fmt.Fprintf(&b, "  aux: %v %v", cfg.Aux[0], cfg.Aux[1])
		return b.String()
	case balboa.InformationResponse:
		return fmt.Sprintf("Model: %s\nSoftware: %s\nSetup: %d\nSignature: 0x%08X\nHeater: %dV type 0x%02X\nDIP: %010b",
			mm.ModelName(), mm.SoftwareID(), mm.SetupNumber, mm.ConfigSignature,
			mm.HeaterVoltage(), mm.HeaterType, mm.DipSwitch)
	case balboa.FilterCycles:
		s := fmt.Sprintf("Cycle 1: starts %02d:%02d, runs %dh%02dm",
			mm.Start1Hour, mm.Start1Minute, mm.Duration1Hours, mm.Duration1Mins)
		if mm.Cycle2Enabled {
			s += fmt.Sprintf("\nCycle 2: starts %02d:%02d, runs %dh%02dm",
				mm.Start2Hour, mm.Start2Minute, mm.Duration2Hours, mm.Duration2Mins)
		} else {
			s += "\nCycle 2: disabled"
		}
		return s
	case balboa.PreferencesResponse:
		return fmt.Sprintf("Preferences: % X", mm.Data)
	case balboa.FaultLogResponse:
		return fmt.Sprintf("Fault %d of %d: %s\n  %d day(s) ago at %02d:%02d, set %d, sensors %d/%d",
			mm.EntryNumber, mm.Count, mm.MessageText(),
			mm.DaysAgo, mm.Hour, mm.Minute, mm.SetTemperature,
			mm.SensorATemperature, mm.SensorBTemperature)
	}
	return summarizeMessage(m)
}
