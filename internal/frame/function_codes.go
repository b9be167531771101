package frame

// Function codes understood by the crc16 dialect.

// FunctionCode is the second byte of an RTU-style frame.
type FunctionCode uint8

const (
	FcReadCoils              FunctionCode = 0x01
	FcReadDiscreteInputs     FunctionCode = 0x02
	FcReadHoldingRegisters   FunctionCode = 0x03
	FcReadInputRegisters     FunctionCode = 0x04
	FcWriteSingleCoil        FunctionCode = 0x05 // data 0xFF00 = on, 0x0000 = off
	FcWriteSingleRegister    FunctionCode = 0x06
	FcWriteMultipleCoils     FunctionCode = 0x0F
	FcWriteMultipleRegisters FunctionCode = 0x10
)

// exceptionBit marks an exception response in the function code byte.
const exceptionBit = 0x80

// String returns a human-readable name for the function code.
func (fc FunctionCode) String() string {
	switch fc {
	case FcReadCoils:
		return "Read_Coils"
	case FcReadDiscreteInputs:
		return "Read_Discrete_Inputs"
	case FcReadHoldingRegisters:
		return "Read_Holding_Registers"
	case FcReadInputRegisters:
		return "Read_Input_Registers"
	case FcWriteSingleCoil:
		return "Write_Single_Coil"
	case FcWriteSingleRegister:
		return "Write_Single_Register"
	case FcWriteMultipleCoils:
		return "Write_Multiple_Coils"
	case FcWriteMultipleRegisters:
		return "Write_Multiple_Registers"
	default:
		return "Unknown"
	}
}

// IsBitRead returns true for reads answered with a packed bit field.
func (fc FunctionCode) IsBitRead() bool {
	return fc == FcReadCoils || fc == FcReadDiscreteInputs
}

// IsRegisterRead returns true for reads answered with 16-bit registers.
func (fc FunctionCode) IsRegisterRead() bool {
	return fc == FcReadHoldingRegisters || fc == FcReadInputRegisters
}

// IsRead returns true for read function codes.
func (fc FunctionCode) IsRead() bool {
	return fc.IsBitRead() || fc.IsRegisterRead()
}

// IsWrite returns true for write function codes, whose response echoes
// the request address and data.
func (fc FunctionCode) IsWrite() bool {
	switch fc {
	case FcWriteSingleCoil, FcWriteSingleRegister,
		FcWriteMultipleCoils, FcWriteMultipleRegisters:
		return true
	default:
		return false
	}
}

// ExceptionCode is the device-reported reason in an exception response.
type ExceptionCode uint8

const (
	ExceptionIllegalFunction    ExceptionCode = 0x01
	ExceptionIllegalDataAddress ExceptionCode = 0x02
	ExceptionIllegalDataValue   ExceptionCode = 0x03
	ExceptionSlaveDeviceFailure ExceptionCode = 0x04
	ExceptionAcknowledge        ExceptionCode = 0x05
	ExceptionSlaveDeviceBusy    ExceptionCode = 0x06
)

// String returns a human-readable name for the exception code.
func (e ExceptionCode) String() string {
	switch e {
	case ExceptionIllegalFunction:
		return "Illegal_Function"
	case ExceptionIllegalDataAddress:
		return "Illegal_Data_Address"
	case ExceptionIllegalDataValue:
		return "Illegal_Data_Value"
	case ExceptionSlaveDeviceFailure:
		return "Slave_Device_Failure"
	case ExceptionAcknowledge:
		return "Acknowledge"
	case ExceptionSlaveDeviceBusy:
		return "Slave_Device_Busy"
	default:
		return "Unknown"
	}
}
