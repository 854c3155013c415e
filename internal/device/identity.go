package device

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/google/uuid"
)

// idNamespace scopes name-based ids so they cannot collide with other uses of machine-id.
var idNamespace = uuid.MustParse("6f3d1c52-8a0e-4b7a-9d1f-2a4c6e8b0d13")

// ID returns the device identifier: override when set, else "Aura2-" plus
// the first hardware address, else a UUID derived from the machine id.
func ID(override string) string {
	if override = strings.TrimSpace(override); override != "" {
		return override
	}
	if mac := firstHardwareAddr(); mac != nil {
		return idFromMAC(mac)
	}
	return "Aura2-" + strings.ReplaceAll(machineUUID().String()[:13], "-", "")
}

func idFromMAC(mac net.HardwareAddr) string {
	var b strings.Builder
	b.WriteString("Aura2-")
	for _, octet := range mac {
		fmt.Fprintf(&b, "%02X", octet)
	}
	return b.String()
}

func firstHardwareAddr() net.HardwareAddr {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) < 6 {
			continue
		}
		return iface.HardwareAddr
	}
	return nil
}

func machineUUID() uuid.UUID {
	for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		if raw, err := os.ReadFile(path); err == nil {
			if id := strings.TrimSpace(string(raw)); id != "" {
				return uuid.NewSHA1(idNamespace, []byte(id))
			}
		}
	}
	host, _ := os.Hostname()
	return uuid.NewSHA1(idNamespace, []byte(host))
}
