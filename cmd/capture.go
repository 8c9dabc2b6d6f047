// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Caldera Works

package cmd

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/calderaworks/spastat/pkg/balboa"
	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/cobra"
)

var replayRealtime bool

var captureCmd = &cobra.Command{
	Use:   "capture <file>",
	Short: "Record raw bus frames to a CBOR stream file",
	Long: `Record every delimiter-bounded frame candidate from the bus,
with receive timestamps, into a CBOR stream file. Frames are stored
undecoded, so captures keep even spans the codec rejects; replay runs
them through the decoder later.

Press Ctrl+C to stop recording.`,
	Args: cobra.ExactArgs(1),
	RunE: runCapture,
}

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Replay a captured CBOR stream through the decoder",
	Long: `Read a capture file and run every recorded frame through the
frame codec and message catalog, printing the same output as monitor.
With --realtime, playback is paced by the recorded timestamps.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().BoolVar(&replayRealtime, "realtime", false, "Pace playback by the recorded timestamps")
	rootCmd.AddCommand(captureCmd, replayCmd)
}

// capturedFrame is one record of the capture stream: the raw scanner
// span (delimiters included) and when it arrived.
type capturedFrame struct {
	When time.Time `cbor:"when"`
	Raw  []byte    `cbor:"raw"`
}

func runCapture(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	out, err := os.Create(args[0])
	if err != nil {
		return fmt.Errorf("create capture file: %w", err)
	}
	defer out.Close()

	fmt.Printf("Spastat - Frame Capture\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Recording to: %s\n", args[0])
	fmt.Printf("Press Ctrl+C to stop\n\n")

	// Scanner.Next blocks in conn.Read; closing the connection on
	// interrupt is what unblocks it.
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	stopped := make(chan struct{})
	go func() {
		<-interrupt
		close(stopped)
		conn.Close()
	}()

	// Frames arrive several per second; whole-second timestamps would
	// collapse them, so keep microsecond resolution.
	em, err := cbor.EncOptions{Time: cbor.TimeUnixMicro}.EncMode()
	if err != nil {
		return err
	}
	enc := em.NewEncoder(out)
	scanner := balboa.NewScanner(conn)
	count := 0

	for {
		span, err := scanner.Next()
		if err != nil {
			select {
			case <-stopped:
			default:
				if !errors.Is(err, io.EOF) && err != ErrConnectionClosed {
					log.Printf("Read error: %v", err)
					continue
				}
			}
			break
		}

		rec := capturedFrame{When: time.Now(), Raw: append([]byte(nil), span...)}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("write capture record: %w", err)
		}
		count++
	}

	fmt.Printf("\nCaptured %d frame(s)\n", count)
	return nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	in, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open capture file: %w", err)
	}
	defer in.Close()

	dec := cbor.NewDecoder(in)
	decoder := balboa.NewStatusDecoder()

	var prev time.Time
	count, bad := 0, 0

	for {
		var rec capturedFrame
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("read capture record: %w", err)
		}
		count++

		if replayRealtime && !prev.IsZero() {
			if gap := rec.When.Sub(prev); gap > 0 {
				time.Sleep(gap)
			}
		}
		prev = rec.When

		frame, err := balboa.DecodeFrame(rec.Raw)
		if err != nil {
			bad++
			fmt.Printf("[%s] [ERROR] %v (% X)\n", rec.When.Format("15:04:05.000"), err, rec.Raw)
			continue
		}
		msg, err := balboa.ParseMessage(frame)
		if err != nil {
			bad++
			fmt.Printf("[%s] [ERROR] %v\n", rec.When.Format("15:04:05.000"), err)
			continue
		}

		summary := summarizeMessage(msg)
		if su, ok := msg.(balboa.StatusUpdate); ok {
			snap, _ := decoder.Decode(su)
			summary = snap.String()
		}
		fmt.Printf("[%s] ch=0x%02X type=0x%02X %-24s % X\n",
			rec.When.Format("15:04:05.000"), frame.Channel, frame.TypeCode, summary, frame.Payload)
	}

	fmt.Printf("\nReplayed %d frame(s), %d undecodable\n", count, bad)
	return nil
}
