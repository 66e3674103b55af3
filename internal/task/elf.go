package task

import "debug/elf"

// elfIdentSize is the size of an Elf64_Ehdr, enough to hold e_ident
// without needing a full debug/elf.NewFile section parse (Exec only hands
// this header to Registry.Detect; it reads no other part of the binary).
const elfIdentSize = 64

// OSABI extracts the ELF identification's OS/ABI byte (e_ident[EI_OSABI])
// from a raw header, the detail Registry.Detect's per-ABI detectors key
// on. Returns elf.ELFOSABI_NONE if header is too short to contain one.
func OSABI(header []byte) elf.OSABI {
	if len(header) <= elf.EI_OSABI {
		return elf.ELFOSABI_NONE
	}
	return elf.OSABI(header[elf.EI_OSABI])
}
