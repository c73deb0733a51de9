// Command isc-echo opens an isc channel against a FourCC uid, sends one
// message if -send is given, and listens for bound/unbind and peer messages until
// interrupted.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/isc-go/isc"
	"github.com/isc-go/isc/internal/logging"
)

func main() {
	var (
		uidStr    = flag.String("uid", "ECHO", "four-character channel uid")
		devPath   = flag.String("device", isc.DefaultDevicePath, "isc character device path")
		message   = flag.String("send", "", "if set, send this message once after opening")
		slotSize  = flag.Uint("slot-size", 256, "send/recv slot payload size in bytes")
		slotCount = flag.Uint("slot-count", 8, "send/recv ring slot count")
		verbose   = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	uid, err := parseUID(*uidStr)
	if err != nil {
		log.Fatalf("invalid -uid %q: %v", *uidStr, err)
	}

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	send := &isc.Attr{SlotSize: uint16(*slotSize), SlotCount: uint16(*slotCount)}
	recv := &isc.Attr{SlotSize: uint16(*slotSize), SlotCount: uint16(*slotCount)}

	ch, err := isc.Open(uid, send, recv, &isc.Options{
		Logger:     logger,
		DevicePath: *devPath,
	})
	if err != nil {
		logger.Error("failed to open channel", "error", err)
		os.Exit(1)
	}
	defer ch.Close()

	ch.AddListener(&isc.Capabilities{
		Bound: func(any) { logger.Info("peer bound") },
		Unbind: func(any) { logger.Info("peer unbound") },
		Got: func(payload []byte, arg any) int32 {
			fmt.Printf("received: %s\n", payload)
			return 0
		},
	}, nil)

	if *message != "" {
		buf := make([]byte, *slotSize)
		n := copy(buf, *message)
		rc, err := ch.Send(buf[:n])
		if err != nil {
			logger.Error("send failed", "error", err)
		} else {
			fmt.Printf("sent %q, peer rc=%d, reply=%q\n", *message, rc, buf[:n])
		}
	}

	fmt.Println("listening, press Ctrl+C to stop...")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")
}

func parseUID(s string) (uint32, error) {
	var b [4]byte
	copy(b[:], s)
	if len(s) < 4 {
		for i := len(s); i < 4; i++ {
			b[i] = ' '
		}
	}
	if len(s) > 4 {
		return 0, fmt.Errorf("uid must be at most four characters, got %q", s)
	}
	return isc.FourCC(b[0], b[1], b[2], b[3]), nil
}
