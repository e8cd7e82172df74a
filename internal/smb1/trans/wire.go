package trans

import (
	"encoding/binary"
	"errors"
)

// ErrWordBlockTooShort is returned when a command's parameter word block is
// shorter than its fixed layout requires.
var ErrWordBlockTooShort = errors.New("trans: word block too short for command layout")

// reqParams holds the fields of a primary TRANSACTION/TRANSACTION2 request
// that the reassembly engine cares about. TRANSACTION and TRANSACTION2 share
// the same 2-byte-field layout; NT_TRANSACT uses 4-byte fields and is parsed
// by ntReqParams below.
//
//	Offset  Size  Field
//	0       2     TotalParameterCount
//	2       2     TotalDataCount
//	4       2     MaxParameterCount
//	6       2     MaxDataCount
//	8       1     MaxSetupCount
//	9       1     Reserved1
//	10      2     Flags            (TRANSACTION only: bit0 DisconnectTID, bit1 OneWay)
//	12      4     Timeout
//	16      2     Reserved2
//	18      2     ParameterCount
//	20      2     ParameterOffset
//	22      2     DataCount
//	24      2     DataOffset
//	26      1     SetupCount
//	27      1     Reserved3
//	28      *     Setup[SetupCount] (Setup[0] is the subcommand/function code)
type reqParams struct {
	TotalParameterCount uint16
	TotalDataCount      uint16
	Flags               uint16
	ParameterCount      uint16
	ParameterOffset     uint16
	DataCount           uint16
	DataOffset          uint16
	SetupCount          uint8
	Setup               []uint16
}

const reqFlagDisconnectTID = 0x0001
const reqFlagOneWay = 0x0002

func parseReqParams(words []byte) (*reqParams, error) {
	if len(words) < 28 {
		return nil, ErrWordBlockTooShort
	}
	setupCount := words[26]
	setupEnd := 28 + int(setupCount)*2
	if len(words) < setupEnd {
		return nil, ErrWordBlockTooShort
	}
	p := &reqParams{
		TotalParameterCount: binary.LittleEndian.Uint16(words[0:2]),
		TotalDataCount:      binary.LittleEndian.Uint16(words[2:4]),
		Flags:               binary.LittleEndian.Uint16(words[10:12]),
		ParameterCount:      binary.LittleEndian.Uint16(words[18:20]),
		ParameterOffset:     binary.LittleEndian.Uint16(words[20:22]),
		DataCount:           binary.LittleEndian.Uint16(words[22:24]),
		DataOffset:          binary.LittleEndian.Uint16(words[24:26]),
		SetupCount:          setupCount,
	}
	for i := 0; i < int(setupCount); i++ {
		off := 28 + i*2
		p.Setup = append(p.Setup, binary.LittleEndian.Uint16(words[off:off+2]))
	}
	return p, nil
}

func (p *reqParams) DisconnectTID() bool { return p.Flags&reqFlagDisconnectTID != 0 }
func (p *reqParams) OneWay() bool        { return p.Flags&reqFlagOneWay != 0 }
func (p *reqParams) Subcommand() uint16 {
	if len(p.Setup) == 0 {
		return 0
	}
	return p.Setup[0]
}

// secParams holds the fields of a TRANSACTION_SECONDARY/TRANSACTION2_SECONDARY
// continuation PDU.
//
//	Offset  Size  Field
//	0       2     TotalParameterCount
//	2       2     TotalDataCount
//	4       2     ParameterCount
//	6       2     ParameterOffset
//	8       2     ParameterDisplacement
//	10      2     DataCount
//	12      2     DataOffset
//	14      2     DataDisplacement
type secParams struct {
	TotalParameterCount   uint16
	TotalDataCount        uint16
	ParameterCount        uint16
	ParameterOffset       uint16
	ParameterDisplacement uint16
	DataCount             uint16
	DataOffset            uint16
	DataDisplacement      uint16
}

func parseSecParams(words []byte) (*secParams, error) {
	if len(words) < 16 {
		return nil, ErrWordBlockTooShort
	}
	return &secParams{
		TotalParameterCount:   binary.LittleEndian.Uint16(words[0:2]),
		TotalDataCount:        binary.LittleEndian.Uint16(words[2:4]),
		ParameterCount:        binary.LittleEndian.Uint16(words[4:6]),
		ParameterOffset:       binary.LittleEndian.Uint16(words[6:8]),
		ParameterDisplacement: binary.LittleEndian.Uint16(words[8:10]),
		DataCount:             binary.LittleEndian.Uint16(words[10:12]),
		DataOffset:            binary.LittleEndian.Uint16(words[12:14]),
		DataDisplacement:      binary.LittleEndian.Uint16(words[14:16]),
	}, nil
}

// ntReqParams holds the fields of a primary NT_TRANSACT request. NT_TRANSACT
// widens the counts and offsets to 4 bytes (ULONG) so a single transaction
// can carry more than 64KB.
//
//	Offset  Size  Field
//	0       1     MaxSetupCount
//	1       3     Reserved1
//	4       4     TotalParameterCount
//	8       4     TotalDataCount
//	12      4     MaxParameterCount
//	16      4     MaxDataCount
//	20      4     ParameterCount
//	24      4     ParameterOffset
//	28      4     DataCount
//	32      4     DataOffset
//	36      1     SetupCount
//	37      2     Function
//	39      *     Setup[SetupCount]
type ntReqParams struct {
	TotalParameterCount uint32
	TotalDataCount      uint32
	ParameterCount      uint32
	ParameterOffset     uint32
	DataCount           uint32
	DataOffset          uint32
	Function            uint16
	SetupCount          uint8
}

func parseNTReqParams(words []byte) (*ntReqParams, error) {
	if len(words) < 39 {
		return nil, ErrWordBlockTooShort
	}
	setupCount := words[36]
	setupEnd := 39 + int(setupCount)*2
	if len(words) < setupEnd {
		return nil, ErrWordBlockTooShort
	}
	return &ntReqParams{
		TotalParameterCount: binary.LittleEndian.Uint32(words[4:8]),
		TotalDataCount:      binary.LittleEndian.Uint32(words[8:12]),
		ParameterCount:      binary.LittleEndian.Uint32(words[20:24]),
		ParameterOffset:     binary.LittleEndian.Uint32(words[24:28]),
		DataCount:           binary.LittleEndian.Uint32(words[28:32]),
		DataOffset:          binary.LittleEndian.Uint32(words[32:36]),
		Function:            binary.LittleEndian.Uint16(words[37:39]),
		SetupCount:          setupCount,
	}, nil
}

// ntSecParams holds the fields of an NT_TRANSACT_SECONDARY continuation PDU.
//
//	Offset  Size  Field
//	0       4     Reserved1
//	4       4     TotalParameterCount
//	8       4     TotalDataCount
//	12      4     ParameterCount
//	16      4     ParameterOffset
//	20      4     ParameterDisplacement
//	24      4     DataCount
//	28      4     DataOffset
//	32      4     DataDisplacement
type ntSecParams struct {
	TotalParameterCount   uint32
	TotalDataCount        uint32
	ParameterCount        uint32
	ParameterOffset       uint32
	ParameterDisplacement uint32
	DataCount             uint32
	DataOffset            uint32
	DataDisplacement      uint32
}

func parseNTSecParams(words []byte) (*ntSecParams, error) {
	if len(words) < 36 {
		return nil, ErrWordBlockTooShort
	}
	return &ntSecParams{
		TotalParameterCount:   binary.LittleEndian.Uint32(words[4:8]),
		TotalDataCount:        binary.LittleEndian.Uint32(words[8:12]),
		ParameterCount:        binary.LittleEndian.Uint32(words[12:16]),
		ParameterOffset:       binary.LittleEndian.Uint32(words[16:20]),
		ParameterDisplacement: binary.LittleEndian.Uint32(words[20:24]),
		DataCount:             binary.LittleEndian.Uint32(words[24:28]),
		DataOffset:            binary.LittleEndian.Uint32(words[28:32]),
		DataDisplacement:      binary.LittleEndian.Uint32(words[32:36]),
	}, nil
}
