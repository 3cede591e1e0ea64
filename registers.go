package sx127x

// --- SX127x Registers ---

// Common and LoRa register addresses.
const (
	_FIFO                 = 0x00
	_OP_MODE              = 0x01
	_FRF_MSB              = 0x06
	_FRF_MID              = 0x07
	_FRF_LSB              = 0x08
	_PA_CONFIG            = 0x09
	_PA_RAMP              = 0x0A
	_OCP                  = 0x0B
	_LNA                  = 0x0C
	_FIFO_ADDR_PTR        = 0x0D
	_FIFO_TX_BASE_ADDR    = 0x0E
	_FIFO_RX_BASE_ADDR    = 0x0F
	_FIFO_RX_CURRENT_ADDR = 0x10
	_IRQ_FLAGS_MASK       = 0x11
	_IRQ_FLAGS            = 0x12
	_RX_NB_BYTES          = 0x13
	_PKT_SNR_VALUE        = 0x19
	_PKT_RSSI_VALUE       = 0x1A
	_RSSI_VALUE_LORA      = 0x1B
	_MODEM_CONFIG1        = 0x1D
	_MODEM_CONFIG2        = 0x1E
	_SYMB_TIMEOUT_LSB     = 0x1F
	_PREAMBLE_MSB_LORA    = 0x20
	_PREAMBLE_LSB_LORA    = 0x21
	_PAYLOAD_LENGTH_LORA  = 0x22
	_MAX_PAYLOAD_LENGTH   = 0x23
	_FIFO_RX_BYTE_ADDR    = 0x25
	_MODEM_CONFIG3        = 0x26
	_DETECT_OPTIMIZE      = 0x31
	_DETECTION_THRESHOLD  = 0x37
	_DIO_MAPPING1         = 0x40
	_VERSION              = 0x42
	_PA_DAC               = 0x4D
)

// FSK/OOK register addresses. Several of them alias LoRa registers,
// which is why the family table below selects addresses per modem.
const (
	_RSSI_VALUE_FSK     = 0x11
	_PREAMBLE_MSB_FSK   = 0x25
	_PREAMBLE_LSB_FSK   = 0x26
	_SYNC_CONFIG        = 0x27
	_PACKET_CONFIG1     = 0x30
	_PAYLOAD_LENGTH_FSK = 0x32
	_NODE_ADRS          = 0x33
	_BROADCAST_ADRS     = 0x34
	_FIFO_THRESH        = 0x35
	_TEMP               = 0x3C
	_IRQ_FLAGS1         = 0x3E
	_IRQ_FLAGS2         = 0x3F
)

// RegOpMode bits
const (
	_LONG_RANGE_MODE   = 1 << 7
	_ACCESS_SHARED_REG = 1 << 6
	_LOW_FREQ_MODE_ON  = 1 << 3
	_MODE_MASK         = 0x07
)

// LoRa RegIrqFlags bits
const (
	_IRQ_RX_TIMEOUT   = 1 << 7
	_IRQ_RX_DONE      = 1 << 6
	_IRQ_CRC_ERROR    = 1 << 5
	_IRQ_VALID_HEADER = 1 << 4
	_IRQ_TX_DONE      = 1 << 3
	_IRQ_CAD_DONE     = 1 << 2
	_IRQ_CAD_DETECTED = 1 << 0
	_IRQ_FLAGS_ALL    = 0xFF
)

// FSK RegIrqFlags2 bits
const (
	_IRQ2_PACKET_SENT   = 1 << 3
	_IRQ2_PAYLOAD_READY = 1 << 2
	_IRQ2_CRC_OK        = 1 << 1
)

const (
	_CHIP_VERSION = 0x12

	// Receive front-end settings applied before every listen.
	_LNA_MAX_GAIN_BOOST = 0x23
	_PA_RAMP_RX         = 0x09
	_SYMB_TIMEOUT_MAX   = 0xFF

	// Defaults written to ModemConfig1/2/3 when entering LoRa mode:
	// BW 125 kHz, CR 4/5, explicit header, SF7, CRC off, LDRO off.
	_MODEM_CONFIG1_DEFAULT = 0x72
	_MODEM_CONFIG2_DEFAULT = 0x70
	_MODEM_CONFIG3_DEFAULT = 0x00

	_FIFO_THRESH_TX_START = 0x80
)

// familyRegisters holds the addresses and flag bits that differ between the two
// modem families for otherwise equivalent concepts.
type familyRegisters struct {
	preambleMSB   byte
	preambleLSB   byte
	payloadLength byte
	rssi          byte

	// irqFlags is the register polled for rx/tx completion.
	irqFlags byte
	// rxStart is the flag that marks the start of an incoming frame
	// (ValidHeader for LoRa, PayloadReady for FSK).
	rxStart byte
	rxDone  byte
	txDone  byte

	// fifoPointers reports whether the FIFO is addressed through
	// FifoAddrPtr/TxBase/RxBase (LoRa only).
	fifoPointers bool

	// maxFrame is the largest frame the FIFO holds, overhead included.
	maxFrame int
}

var familyTable = [...]familyRegisters{
	LoRa: {
		preambleMSB:   _PREAMBLE_MSB_LORA,
		preambleLSB:   _PREAMBLE_LSB_LORA,
		payloadLength: _PAYLOAD_LENGTH_LORA,
		rssi:          _RSSI_VALUE_LORA,
		irqFlags:      _IRQ_FLAGS,
		rxStart:       _IRQ_VALID_HEADER,
		rxDone:        _IRQ_RX_DONE,
		txDone:        _IRQ_TX_DONE,
		fifoPointers:  true,
		maxFrame:      255,
	},
	FSK: {
		preambleMSB:   _PREAMBLE_MSB_FSK,
		preambleLSB:   _PREAMBLE_LSB_FSK,
		payloadLength: _PAYLOAD_LENGTH_FSK,
		rssi:          _RSSI_VALUE_FSK,
		irqFlags:      _IRQ_FLAGS2,
		rxStart:       _IRQ2_PAYLOAD_READY,
		rxDone:        _IRQ2_PAYLOAD_READY,
		txDone:        _IRQ2_PACKET_SENT,
		fifoPointers:  false,
		maxFrame:      64,
	},
}

func (f ModemFamily) registers() familyRegisters {
	return familyTable[f]
}
