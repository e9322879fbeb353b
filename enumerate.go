package main

import (
	"fmt"

	"github.com/sstallion/go-hid"
)

// listDevices prints every HID interface on the host so the user can
// find the VID/PID or raw path worth probing.
func listDevices() {
	count := 0
	hid.Enumerate(0, 0, func(info *hid.DeviceInfo) error {
		count++
		fmt.Printf("[%02d] VID:PID=0x%04X:0x%04X  path=%s\n",
			count, info.VendorID, info.ProductID, info.Path)
		if info.MfrStr != "" || info.ProductStr != "" {
			fmt.Printf("     %s %s\n", info.MfrStr, info.ProductStr)
		}
		fmt.Printf("     usage_page=0x%04X usage=0x%04X interface=%d\n",
			info.UsagePage, info.Usage, info.InterfaceNbr)
		return nil
	})
	if count == 0 {
		fmt.Println("No HID devices found.")
		return
	}
	fmt.Printf("Found %d HID device(s).\n", count)
}
