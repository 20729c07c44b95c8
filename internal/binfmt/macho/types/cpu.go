package types

// A CPU is a Mach-O cpu type. These are Apple's stable cpu_type_t
// constants, an exhaustive enum table rather than logic, trimmed to the
// architectures this project needs to recognize.
type CPU uint32

const (
	cpuArch64 = 0x01000000 // 64-bit ABI
)

const (
	CPUVax    CPU = 1
	CPUMC680  CPU = 6
	CPU386    CPU = 7
	CPUAmd64  CPU = CPU386 | cpuArch64
	CPUMC98   CPU = 10
	CPUHPPA   CPU = 11
	CPUArm    CPU = 12
	CPUArm64  CPU = CPUArm | cpuArch64
	CPUMC880  CPU = 13
	CPUSparc  CPU = 14
	CPUI860   CPU = 15
	CPUPpc    CPU = 18
	CPUPpc64  CPU = CPUPpc | cpuArch64
)

var cpuStrings = []IntName{
	{uint32(CPU386), "x86"},
	{uint32(CPUAmd64), "x86_64"},
	{uint32(CPUArm), "ARM"},
	{uint32(CPUArm64), "ARM64"},
	{uint32(CPUPpc), "PowerPC"},
	{uint32(CPUPpc64), "PowerPC"},
	{uint32(CPUSparc), "SPARC"},
}

// Canonical maps the cpu type to its canonical arch string (x86_64, ARM64,
// ARM, x86, PowerPC, ...); unrecognized values fall back to a hex literal.
func (c CPU) Canonical() string {
	return StringName(uint32(c), cpuStrings)
}

// Bits reports the pointer width implied by the cpu type's 64-bit ABI bit.
func (c CPU) Bits() int {
	if uint32(c)&cpuArch64 != 0 {
		return 64
	}
	return 32
}
