package modbus

// CRC16 computes the Modbus serial line CRC over data using the 0xA001
// reflected polynomial with an initial value of 0xFFFF. The result is
// transmitted on the wire low byte first.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)

	for _, b := range data {
		crc ^= uint16(b)

		for i := 0; i < 8; i++ {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}

	return crc
}

// appendCRC appends the CRC of adu to adu, low byte first.
func appendCRC(adu []byte) []byte {
	crc := CRC16(adu)
	return append(adu, byte(crc), byte(crc>>8))
}

// checkCRC verifies the trailing two CRC bytes of adu.
func checkCRC(adu []byte) bool {
	if len(adu) < 2 {
		return false
	}

	want := CRC16(adu[:len(adu)-2])

	return adu[len(adu)-2] == byte(want) && adu[len(adu)-1] == byte(want>>8)
}
