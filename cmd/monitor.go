// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caldera Works

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/calderaworks/spastat/pkg/balboa"
	"github.com/spf13/cobra"
)

var (
	monitorArbitrate  bool
	monitorStatusOnly bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Display decoded bus frames in human-readable format",
	Long: `Continuously decode and display spa bus frames as they arrive.

Each frame is shown with a timestamp, its raw hex bytes, and a typed
summary. By default the tool is a pure listener and never transmits;
with --arbitrate it joins channel arbitration and answers bus polls so
the board keeps the channel warm for later control sessions.

Supports serial, TCP, and WebSocket connections.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().BoolVar(&monitorArbitrate, "arbitrate", false, "Join channel arbitration instead of listening passively")
	monitorCmd.Flags().BoolVar(&monitorStatusOnly, "status-only", false, "Only print status broadcasts that changed")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Spastat - Frame Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	if monitorArbitrate {
		return monitorWithClient(conn)
	}

	scanner := balboa.NewScanner(conn)
	decoder := balboa.NewStatusDecoder()

	for {
		span, err := scanner.Next()
		if err != nil {
			if errors.Is(err, io.EOF) || err == ErrConnectionClosed {
				log.Printf("Connection closed")
				return nil
			}
			log.Printf("Read error: %v", err)
			continue
		}

		frame, err := balboa.DecodeFrame(span)
		if err != nil {
			fmt.Printf("[ERROR] %v (% X)\n", err, span)
			continue
		}
		msg, err := balboa.ParseMessage(frame)
		if err != nil {
			fmt.Printf("[ERROR] %v\n", err)
			continue
		}

		if monitorStatusOnly {
			su, ok := msg.(balboa.StatusUpdate)
			if !ok {
				continue
			}
			snap, changed := decoder.Decode(su)
			if changed {
				printFrame(frame, snap.String())
			}
			continue
		}

		printFrame(frame, summarizeMessage(msg))
	}
}

// monitorWithClient runs the full arbitration client so the monitor
// answers polls and grants while printing the same frame log.
func monitorWithClient(conn Connection) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	client := balboa.NewClient(conn)
	client.OnMessage(func(m balboa.Message) {
		printFrame(m.Frame(), summarizeMessage(m))
	})

	err := client.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func printFrame(f balboa.Frame, summary string) {
	fmt.Printf("[%s] ch=0x%02X type=0x%02X %-24s % X\n",
		time.Now().Format("15:04:05.000"), f.Channel, f.TypeCode, summary, f.Payload)
}

// summarizeMessage renders one catalog variant as a short human-readable
// line. Raw payload bytes are printed alongside, so opaque variants just
// get their name.
func summarizeMessage(m balboa.Message) string {
	switch mm := m.(type) {
	case balboa.NewClientClearToSend:
		return "new-client CTS"
	case balboa.ChannelAssignmentRequest:
		return "channel request"
	case balboa.ChannelAssignmentResponse:
		return fmt.Sprintf("channel granted: 0x%02X", mm.Channel)
	case balboa.ChannelAssignmentAck:
		return "channel ack"
	case balboa.ExistingClientRequest:
		return "existing-client poll"
	case balboa.ExistingClientResponse:
		return "existing-client reply"
	case balboa.ClientClearToSend:
		return "clear to send"
	case balboa.NothingToSend:
		return "nothing to send"
	case balboa.ToggleItemRequest:
		return fmt.Sprintf("toggle item 0x%02X", uint8(mm.Item))
	case balboa.StatusUpdate:
		snap := balboa.StatusSnapshot{Raw: mm.Raw}
		return snap.String()
	case balboa.SetTemperatureRequest:
		return fmt.Sprintf("set temperature: %d", mm.Temperature)
	case balboa.SetTimeRequest:
		return fmt.Sprintf("set time: %02d:%02d", mm.Hour, mm.Minute)
	case balboa.SettingsRequest:
		return fmt.Sprintf("settings request % X", mm.Code)
	case balboa.FilterCycles:
		return fmt.Sprintf("filter cycles: %02d:%02d for %dh%02dm, cycle2=%v",
			mm.Start1Hour, mm.Start1Minute, mm.Duration1Hours, mm.Duration1Mins, mm.Cycle2Enabled)
	case balboa.InformationResponse:
		return fmt.Sprintf("board info: %s %s", mm.ModelName(), mm.SoftwareID())
	case balboa.PreferencesResponse:
		return "preferences"
	case balboa.SetPreferenceRequest:
		return fmt.Sprintf("set preference 0x%02X = %d", uint8(mm.Code), mm.Value)
	case balboa.FaultLogResponse:
		return fmt.Sprintf("fault %d/%d: %s", mm.EntryNumber, mm.Count, mm.MessageText())
	case balboa.ConfigurationResponse:
		return "configuration"
	}
	return "unknown"
}
