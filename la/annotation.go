// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package la

import "fmt"

var annotations = map[DecoderType]map[uint8]string{
	UART: {
		UARTStartBit:      "START BIT",
		UARTStartBitError: "START BIT ERROR",
		UARTData:          "DATA",
		UARTParityBit:     "PARITY BIT",
		UARTParityError:   "PARITY ERROR",
		UARTStopBit:       "STOP BIT",
		UARTStopBitError:  "STOP BIT ERROR",
	},
	SPI: {
		SPIData:        "DATA",
		SPIPartialData: "PARTIAL DATA",
	},
	I2C: {
		I2CStart:         "START",
		I2CRepeatedStart: "REPEATED START",
		I2CStop:          "STOP",
		I2CAck:           "ACK",
		I2CNack:          "NACK",
		I2CAddressRead:   "ADDRESS READ",
		I2CAddressWrite:  "ADDRESS WRITE",
		I2CDataRead:      "DATA READ",
		I2CDataWrite:     "DATA WRITE",
	},
	CAN: {
		CANStartOfFrame: "START OF FRAME",
		CANID:           "IDENTIFIER",
		CANExtendedID:   "EXTENDED IDENTIFIER",
		CANIDE:          "IDE",
		CANRTR:          "RTR",
		CANReserved:     "RESERVED BITS",
		CANDLC:          "DLC",
		CANData:         "DATA",
		CANCRC:          "CRC",
		CANCRCError:     "CRC ERROR",
		CANAck:          "ACK",
		CANNack:         "NACK",
		CANEndOfFrame:   "END OF FRAME",
		CANStuffError:   "STUFF ERROR",
		CANFormError:    "FORM ERROR",
	},
}

// Annotation returns a human readable description of a packet control
// for the given decoder type.
func Annotation(typ DecoderType, control uint8) string {
	if s, ok := annotations[typ][control]; ok {
		return s
	}
	return fmt.Sprintf("UNKNOWN(%d)", control)
}

// String returns a human readable description of the packet.
func (p Packet) String() string {
	return fmt.Sprintf("{line=%s control=%d data=0x%x start=%g length=%g}",
		p.LineName, p.Control, p.Data, p.SampleStart, p.Length,
	)
}
