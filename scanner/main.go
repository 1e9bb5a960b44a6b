package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/mjasion/balena-home/pkg/bthome"
)

var adapter = bluetooth.DefaultAdapter

func main() {
	filter := flag.String("mac", "", "Comma-separated MAC addresses to show (default: all BTHome devices)")
	selfTest := flag.Bool("selftest", false, "Encrypt and decrypt a sample packet, then exit")
	keys := make(map[uint64][]byte)
	flag.Func("key", "Bind key as MAC=32-hex-chars (repeatable)", func(s string) error {
		mac, key, ok := strings.Cut(s, "=")
		if !ok {
			return fmt.Errorf("expected MAC=KEY")
		}
		addr, err := bthome.ParseMAC(mac)
		if err != nil {
			return err
		}
		k, err := bthome.ParseKey(key)
		if err != nil {
			return err
		}
		keys[addr] = k
		return nil
	})
	flag.Parse()

	if *selfTest {
		must("run self test", runSelfTest())
		return
	}

	targets := make(map[uint64]bool)
	for _, m := range strings.Split(*filter, ",") {
		if strings.TrimSpace(m) == "" {
			continue
		}
		addr, err := bthome.ParseMAC(m)
		must("parse -mac", err)
		targets[addr] = true
	}

	must("enable BLE stack", adapter.Enable())

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("BTHome Scanner Started")
	if len(targets) == 0 {
		fmt.Println("Showing every device advertising UUID 0x181C or 0xFCD2")
	} else {
		fmt.Printf("Filtering for %d MAC address(es)\n", len(targets))
	}
	fmt.Printf("Bind keys loaded: %d\n", len(keys))
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println()

	err := adapter.Scan(func(adapter *bluetooth.Adapter, device bluetooth.ScanResult) {
		mac, err := bthome.ParseMAC(device.Address.String())
		if err != nil {
			return
		}
		if len(targets) > 0 && !targets[mac] {
			return
		}

		for _, sd := range device.ServiceData() {
			if !sd.UUID.Is16Bit() {
				continue
			}
			uuid := sd.UUID.Get16Bit()
			version := bthome.VersionFromUUID(uuid)
			if version == bthome.VersionUnsupported {
				continue
			}
			printPacket(device, mac, uuid, version, sd.Data, keys[mac])
		}
	})
	must("start scan", err)
}

func printPacket(device bluetooth.ScanResult, mac uint64, uuid uint16, version bthome.ProtocolVersion, data, key []byte) {
	fmt.Println("┌─────────────────────────────────────────────────────────")
	fmt.Printf("│ Timestamp: %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Printf("│ Device:    %s\n", device.LocalName())
	fmt.Printf("│ MAC:       %s\n", bthome.FormatMAC(mac))

	strength := getSignalStrength(device.RSSI)
	fmt.Printf("│ RSSI:      %d dBm [%s] %s\n", device.RSSI, strength.bar, strength.label)
	fmt.Printf("│ UUID:      0x%04X (%s)\n", uuid, version)
	fmt.Printf("│ Raw:       % x\n", data)

	objects, err := stripHeader(data, version, mac, key)
	if err != nil {
		fmt.Printf("│ Error:     %v\n", err)
		fmt.Println("└─────────────────────────────────────────────────────────")
		fmt.Println()
		return
	}

	printMeasurements(objects, version)
	fmt.Println("└─────────────────────────────────────────────────────────")
	fmt.Println()
}

func stripHeader(data []byte, version bthome.ProtocolVersion, mac uint64, key []byte) ([]byte, error) {
	if version == bthome.VersionV1 {
		return data, nil
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	info := bthome.ParseDeviceInfo(data[0])
	fmt.Printf("│ Header:    version=%d encrypted=%t mac_included=%t trigger=%t\n",
		info.Version, info.Encrypted, info.MACIncluded, info.TriggerBased)
	if info.Version != uint8(bthome.VersionV2) {
		return nil, fmt.Errorf("unsupported header version %d", info.Version)
	}

	if info.Encrypted {
		if key == nil {
			return nil, fmt.Errorf("encrypted payload, pass -key %s=<bind key>", bthome.FormatMAC(mac))
		}
		plain, err := bthome.Decrypt(data, key, mac)
		if err != nil {
			return nil, err
		}
		data = plain
		info = bthome.ParseDeviceInfo(data[0])
	}

	if info.HeaderLen() > len(data) {
		return nil, fmt.Errorf("payload shorter than its %d byte header", info.HeaderLen())
	}
	return data[info.HeaderLen():], nil
}

func printMeasurements(objects []byte, version bthome.ProtocolVersion) {
	reg := bthome.DefaultRegistry
	parser := bthome.Parser{
		OnMeasurement: func(m bthome.Measurement) {
			format, _ := reg.Lookup(m.ObjectID)
			name := reg.Name(m.ObjectID)
			if m.Index > 0 {
				name = fmt.Sprintf("%s[%d]", name, m.Index)
			}
			fmt.Printf("│ %-20s %g %s\n", name, m.Value, format.Unit)
		},
		OnLog: func(msg string) {
			if !strings.HasPrefix(msg, "rec BT payload") {
				fmt.Printf("│ note:      %s\n", msg)
			}
		},
	}
	parser.Parse(objects, version)
}

func runSelfTest() error {
	key, _ := hex.DecodeString("231d39c1d7cc1ab1aee224cd096db932")
	plain, _ := hex.DecodeString("4002ca0903bf13")
	const mac = uint64(0x5448E68F80A5)

	enc, err := bthome.Encrypt(plain, key, mac, 0x33221100)
	if err != nil {
		return err
	}
	fmt.Printf("encrypted: %x\n", enc)

	dec, err := bthome.Decrypt(enc, key, mac)
	if err != nil {
		return err
	}
	fmt.Printf("decrypted: %x\n", dec)

	measurements, _ := bthome.Decode(dec[1:], bthome.VersionV2)
	for _, m := range measurements {
		fmt.Printf("%s = %g\n", bthome.DefaultRegistry.Name(m.ObjectID), m.Value)
	}
	return nil
}

type signalStrength struct {
	bar   string
	label string
}

func getSignalStrength(rssi int16) signalStrength {
	switch {
	case rssi >= -50:
		return signalStrength{"████████", "Excellent"}
	case rssi >= -60:
		return signalStrength{"██████  ", "Good"}
	case rssi >= -70:
		return signalStrength{"████    ", "Fair"}
	case rssi >= -80:
		return signalStrength{"██      ", "Weak"}
	default:
		return signalStrength{"        ", "Very Weak"}
	}
}

func must(action string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to %s: %v\n", action, err)
		os.Exit(1)
	}
}
