/**
 * Capture Environment Verification Tool.
 *
 * A standalone sanity check for the host a capture helper is about to
 * run on: confirms libpcap/Npcap is loadable and lists the interfaces
 * visible to it, so a `capture_pcapfile`/`capture_serial_radview`
 * deployment can be diagnosed without spinning up the full server.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package main

import (
	"fmt"
	"os"

	"github.com/google/gopacket/pcap"
)

func main() {
	fmt.Println("checking libpcap/Npcap availability...")

	version := pcap.Version()
	fmt.Printf("pcap version: %s\n", version)

	devs, err := pcap.FindAllDevs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error listing devices: %v\npossible causes:\n - libpcap/Npcap is not installed\n - missing capture permissions (CAP_NET_RAW or administrator)\n", err)
		os.Exit(1)
	}

	fmt.Printf("found %d capture-visible interfaces\n", len(devs))
	for i, d := range devs {
		if i >= 5 {
			fmt.Println("... and more")
			break
		}
		fmt.Printf(" - %s (%s)\n", d.Name, d.Description)
	}
}
