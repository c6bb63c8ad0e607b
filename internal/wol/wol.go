// Package wol sends Wake-on-LAN magic packets.
package wol

import (
	"net"

	"github.com/pkg/errors"
)

// BuildMagicPacket returns the WoL frame for a MAC: six 0xFF bytes followed
// by sixteen repetitions of the hardware address.
func BuildMagicPacket(macAddr string) ([]byte, error) {
	mac, err := net.ParseMAC(macAddr)
	if err != nil {
		return nil, errors.Wrap(err, "invalid MAC address")
	}
	if len(mac) != 6 {
		return nil, errors.Errorf("unsupported hardware address length %d", len(mac))
	}

	packet := make([]byte, 0, 6+16*6)
	packet = append(packet, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
	for i := 0; i < 16; i++ {
		packet = append(packet, mac...)
	}
	return packet, nil
}

// Wake broadcasts the magic packet for macAddr on udp/9.
func Wake(macAddr string) error {
	packet, err := BuildMagicPacket(macAddr)
	if err != nil {
		return err
	}

	conn, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.IPv4bcast, Port: 9})
	if err != nil {
		return errors.Wrap(err, "dial broadcast")
	}
	defer conn.Close()

	if _, err := conn.Write(packet); err != nil {
		return errors.Wrap(err, "send magic packet")
	}
	return nil
}
