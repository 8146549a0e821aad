/*-
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package agent

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"slices"
	"strings"

	psnet "github.com/shirou/gopsutil/v3/net"
)

const zeroMAC = "00:00:00:00:00:00"

// SystemDiscoverer reads the hostname and interfaces of the local host.
type SystemDiscoverer struct{}

func (SystemDiscoverer) Hostname() (string, error) {
	return os.Hostname()
}

func (SystemDiscoverer) Interfaces(ctx context.Context) ([]Interface, error) {
	stats, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	return filterInterfaces(stats), nil
}

// filterInterfaces keeps up interfaces with a hardware address and yields
// at most one IPv4 and one IPv6 pair per interface. An interface whose
// IPv4 address is loopback or in 224/8 or 239/8, or whose IPv6 address is
// ::1, is dropped entirely.
func filterInterfaces(stats []psnet.InterfaceStat) []Interface {
	var out []Interface

	for _, st := range stats {
		if !slices.Contains(st.Flags, "up") {
			continue
		}

		mac := strings.ReplaceAll(st.HardwareAddr, "-", ":")
		if mac == "" || mac == zeroMAC {
			continue
		}

		var v4, v6 string

		for _, a := range st.Addrs {
			addr, ok := parseAddr(a.Addr)
			if !ok {
				continue
			}

			switch {
			case addr.Is4() && v4 == "":
				v4 = addr.String()
			case addr.Is6() && !addr.Is4In6() && v6 == "":
				v6 = addr.String()
			}
		}

		if strings.HasPrefix(v4, "127.") || strings.HasPrefix(v4, "224.") || strings.HasPrefix(v4, "239.") {
			continue
		}

		if v6 == "::1" {
			continue
		}

		if v4 != "" {
			out = append(out, Interface{Name: st.Name, IP: v4, MAC: mac})
		}

		if v6 != "" {
			out = append(out, Interface{Name: st.Name, IP: v6, MAC: mac})
		}
	}

	return out
}

// parseAddr accepts "10.0.0.1/24", "fe80::1%eth0/64" and bare addresses.
func parseAddr(s string) (netip.Addr, bool) {
	host, _, _ := strings.Cut(s, "/")

	a, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}

	return a.WithZone(""), true
}
