package util

import (
	"strings"

	"github.com/currantlabs/ble"
)

// bluetoothBaseSuffix is the tail of the Bluetooth base UUID 0000xxxx-0000-1000-8000-00805F9B34FB
const bluetoothBaseSuffix = "00001000800000805F9B34FB"

func AddrEqualAddr(a string, b string) bool {
	return strings.ToUpper(a) == strings.ToUpper(b)
}

// NormalizeUUID strips dashes, upper cases, and shortens UUIDs built on the Bluetooth
// base UUID to their 16 bit form, so "0000180a-0000-1000-8000-00805f9b34fb" becomes "180A".
func NormalizeUUID(s string) string {
	s = strings.ToUpper(strings.Replace(s, "-", "", -1))
	if len(s) == 32 && strings.HasPrefix(s, "0000") && strings.HasSuffix(s, bluetoothBaseSuffix) {
		return s[4:8]
	}
	return s
}

func UuidEqualStr(u ble.UUID, s string) bool {
	return NormalizeUUID(u.String()) == NormalizeUUID(s)
}

func UuidStrEqualStr(a string, b string) bool {
	return NormalizeUUID(a) == NormalizeUUID(b)
}
