// Standalone one-shot battery read against the reference device,
// bypassing the config layer. Handy when bisecting whether a failure
// sits in the toolkit or in the device.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sstallion/go-hid"

	"hidprobe/probe"
)

func main() {
	if err := hid.Init(); err != nil {
		log.Fatalf("hid init: %v", err)
	}
	defer hid.Exit()

	s, err := probe.Open(probe.Identity{
		VendorID:  probe.AngryMiaoVendorID,
		ProductID: probe.AngryMiaoProductID,
		Interface: 2,
	})
	if err != nil {
		log.Fatalf("open: %v", err)
	}
	defer s.Close()

	fmt.Printf("Opened %s\n", s.Path())

	lvl, err := probe.ReadBattery(context.Background(), s, probe.SystemClock(), 3, 50*time.Millisecond)
	if err != nil {
		log.Fatalf("battery read: %v", err)
	}
	fmt.Printf("Battery: %d%%\n", lvl)
}
