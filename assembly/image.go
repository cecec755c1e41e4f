// Package assembly parses and validates in-memory .NET assembly images
// before they are handed to the CLR.
//
// Only the headers needed to decide whether a buffer is a loadable managed
// image are read: the DOS and NT headers, the section table, the CLI header
// referenced by the COM descriptor directory and the metadata root.
package assembly

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalidImage is wrapped by every FormatError.
	ErrInvalidImage = errors.New("invalid PE image")
	// ErrNotManaged is returned for well-formed PE files without a CLI header.
	ErrNotManaged = errors.New("image is not a .NET assembly")
)

const (
	sizeOfCor20Header = 72
	maxSections       = 96
	maxVersionLength  = 255
)

// FormatError reports a malformed or truncated header.
type FormatError struct {
	Offset int64
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid PE image at offset 0x%x: %s", e.Offset, e.Reason)
}

// Unwrap returns ErrInvalidImage so callers can use errors.Is.
func (e *FormatError) Unwrap() error { return ErrInvalidImage }

// Image holds the parsed headers of a managed PE image.
type Image struct {
	Machine         WORD
	Characteristics WORD
	Subsystem       WORD
	PE32Plus        bool
	Sections        []IMAGE_SECTION_HEADER
	CLR             IMAGE_COR20_HEADER
	// RuntimeVersion is the version string stored in the metadata root,
	// for example "v4.0.30319".
	RuntimeVersion string
}

// Validate reports whether b is a well-formed managed image.
func Validate(b []byte) error {
	_, err := Parse(b)
	return err
}

// Parse reads the headers of the managed image in b. It never reads past
// the end of the buffer.
func Parse(pSourceBytes []byte) (*Image, error) {
	var pImageHeader IMAGE_DOS_HEADER
	if err := readAt(pSourceBytes, 0, &pImageHeader, "DOS header"); err != nil {
		return nil, err
	}

	// Check the Magic Byte
	if pImageHeader.E_magic != IMAGE_DOS_SIGNATURE {
		return nil, &FormatError{Offset: 0, Reason: "missing MZ signature"}
	}

	ntHeaderOffset := int64(pImageHeader.E_lfanew)
	var signature DWORD
	if err := readAt(pSourceBytes, ntHeaderOffset, &signature, "NT signature"); err != nil {
		return nil, err
	}
	if signature != IMAGE_NT_SIGNATURE {
		return nil, &FormatError{Offset: ntHeaderOffset, Reason: "missing PE signature"}
	}

	var pFileHeader IMAGE_FILE_HEADER
	fileHeaderOffset := ntHeaderOffset + int64(binary.Size(signature))
	if err := readAt(pSourceBytes, fileHeaderOffset, &pFileHeader, "file header"); err != nil {
		return nil, err
	}
	if pFileHeader.NumberOfSections == 0 || pFileHeader.NumberOfSections > maxSections {
		return nil, &FormatError{
			Offset: fileHeaderOffset,
			Reason: fmt.Sprintf("unexpected section count %d", pFileHeader.NumberOfSections),
		}
	}

	img := &Image{
		Machine:         pFileHeader.Machine,
		Characteristics: pFileHeader.Characteristics,
	}

	optOffset := fileHeaderOffset + int64(binary.Size(pFileHeader))
	var magic WORD
	if err := readAt(pSourceBytes, optOffset, &magic, "optional header"); err != nil {
		return nil, err
	}

	var dirs [IMAGE_NUMBEROF_DIRECTORY_ENTRIES]IMAGE_DATA_DIRECTORY
	var numberOfDirs DWORD
	switch magic {
	case IMAGE_NT_OPTIONAL_HDR32_MAGIC:
		var pOptHeader IMAGE_OPTIONAL_HEADER32
		if int(pFileHeader.SizeOfOptionalHeader) < binary.Size(pOptHeader) {
			return nil, &FormatError{Offset: optOffset, Reason: "optional header too small"}
		}
		if err := readAt(pSourceBytes, optOffset, &pOptHeader, "optional header"); err != nil {
			return nil, err
		}
		img.Subsystem = pOptHeader.Subsystem
		dirs, numberOfDirs = pOptHeader.DataDirectory, pOptHeader.NumberOfRvaAndSizes
	case IMAGE_NT_OPTIONAL_HDR64_MAGIC:
		var pOptHeader IMAGE_OPTIONAL_HEADER64
		if int(pFileHeader.SizeOfOptionalHeader) < binary.Size(pOptHeader) {
			return nil, &FormatError{Offset: optOffset, Reason: "optional header too small"}
		}
		if err := readAt(pSourceBytes, optOffset, &pOptHeader, "optional header"); err != nil {
			return nil, err
		}
		img.PE32Plus = true
		img.Subsystem = pOptHeader.Subsystem
		dirs, numberOfDirs = pOptHeader.DataDirectory, pOptHeader.NumberOfRvaAndSizes
	default:
		return nil, &FormatError{Offset: optOffset, Reason: fmt.Sprintf("unknown optional header magic 0x%x", magic)}
	}

	sectionHeaderOffset := IMAGE_FIRST_SECTION(pImageHeader.E_lfanew, pFileHeader)
	for i := WORD(0); i < pFileHeader.NumberOfSections; i++ {
		var sectionHeader IMAGE_SECTION_HEADER
		if err := readAt(pSourceBytes, sectionHeaderOffset, &sectionHeader, "section header"); err != nil {
			return nil, err
		}
		img.Sections = append(img.Sections, sectionHeader)
		sectionHeaderOffset += int64(binary.Size(sectionHeader))
	}

	if numberOfDirs <= IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR {
		return nil, ErrNotManaged
	}
	comDir := dirs[IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR]
	if comDir.VirtualAddress == 0 || comDir.Size == 0 {
		return nil, ErrNotManaged
	}

	corOffset, ok := img.rvaToOffset(comDir.VirtualAddress)
	if !ok {
		return nil, &FormatError{Offset: optOffset, Reason: "CLI header outside of any section"}
	}
	if err := readAt(pSourceBytes, corOffset, &img.CLR, "CLI header"); err != nil {
		return nil, err
	}
	if img.CLR.Cb < sizeOfCor20Header {
		return nil, &FormatError{Offset: corOffset, Reason: fmt.Sprintf("CLI header size %d", img.CLR.Cb)}
	}

	version, err := img.readMetadataVersion(pSourceBytes)
	if err != nil {
		return nil, err
	}
	img.RuntimeVersion = version

	return img, nil
}

func (img *Image) readMetadataVersion(b []byte) (string, error) {
	md := img.CLR.MetaData
	if md.VirtualAddress == 0 || md.Size == 0 {
		return "", &FormatError{Reason: "missing metadata directory"}
	}
	offset, ok := img.rvaToOffset(md.VirtualAddress)
	if !ok {
		return "", &FormatError{Reason: "metadata outside of any section"}
	}

	var root METADATA_ROOT
	if err := readAt(b, offset, &root, "metadata root"); err != nil {
		return "", err
	}
	if root.Signature != METADATA_SIGNATURE {
		return "", &FormatError{Offset: offset, Reason: "missing BSJB metadata signature"}
	}
	if root.Length == 0 || root.Length > maxVersionLength {
		return "", &FormatError{Offset: offset, Reason: fmt.Sprintf("metadata version length %d", root.Length)}
	}

	versionOffset := offset + int64(binary.Size(root))
	versionBytes := make([]byte, root.Length)
	if err := readAt(b, versionOffset, versionBytes, "metadata version"); err != nil {
		return "", err
	}
	if i := bytes.IndexByte(versionBytes, 0); i >= 0 {
		versionBytes = versionBytes[:i]
	}
	return string(versionBytes), nil
}

// rvaToOffset converts a relative virtual address into a raw file offset
// using the section table.
func (img *Image) rvaToOffset(rva DWORD) (int64, bool) {
	for _, sectionHeader := range img.Sections {
		size := sectionHeader.Misc
		if sectionHeader.SizeOfRawData > size {
			size = sectionHeader.SizeOfRawData
		}
		if rva >= sectionHeader.VirtualAddress && rva < sectionHeader.VirtualAddress+size {
			return int64(sectionHeader.PointerToRawData) + int64(rva-sectionHeader.VirtualAddress), true
		}
	}
	return 0, false
}

// IsDLL reports whether the image is a library.
func (img *Image) IsDLL() bool { return img.Characteristics&IMAGE_FILE_DLL != 0 }

// IsExecutable reports whether the image is marked executable and is not a DLL.
func (img *Image) IsExecutable() bool {
	return img.Characteristics&IMAGE_FILE_EXECUTABLE_IMAGE != 0 && !img.IsDLL()
}

// HasEntryPoint reports whether the CLI header designates a managed entry
// point. Mixed-mode images with a native entry point store an RVA instead of
// a method token and cannot be started through reflection.
func (img *Image) HasEntryPoint() bool {
	return img.CLR.EntryPointToken != 0 && img.CLR.Flags&COMIMAGE_FLAGS_NATIVE_ENTRYPOINT == 0
}

// StrongNamed reports whether the image carries a strong name signature.
func (img *Image) StrongNamed() bool {
	return img.CLR.Flags&COMIMAGE_FLAGS_STRONGNAMESIGNED != 0 && img.CLR.StrongNameSignature.Size != 0
}

// ILOnly reports whether the image contains only IL code.
func (img *Image) ILOnly() bool { return img.CLR.Flags&COMIMAGE_FLAGS_ILONLY != 0 }

// Requires32Bit reports whether the image can only run in a 32-bit process.
func (img *Image) Requires32Bit() bool {
	return img.CLR.Flags&COMIMAGE_FLAGS_32BITREQUIRED != 0 && img.CLR.Flags&COMIMAGE_FLAGS_32BITPREFERRED == 0
}

// MachineName returns a short name for the target machine.
func (img *Image) MachineName() string {
	switch img.Machine {
	case IMAGE_FILE_MACHINE_I386:
		if img.ILOnly() && !img.Requires32Bit() {
			return "anycpu"
		}
		return "x86"
	case IMAGE_FILE_MACHINE_AMD64:
		return "x64"
	case IMAGE_FILE_MACHINE_ARM64:
		return "arm64"
	default:
		return fmt.Sprintf("0x%04x", uint16(img.Machine))
	}
}

// SubsystemName returns the Windows subsystem the image was linked for.
func (img *Image) SubsystemName() string {
	switch img.Subsystem {
	case IMAGE_SUBSYSTEM_NATIVE:
		return "native"
	case IMAGE_SUBSYSTEM_WINDOWS_GUI:
		return "gui"
	case IMAGE_SUBSYSTEM_WINDOWS_CUI:
		return "console"
	default:
		return strconv.Itoa(int(img.Subsystem))
	}
}

// SectionNames lists the section names in table order.
func (img *Image) SectionNames() []string {
	names := make([]string, 0, len(img.Sections))
	for _, s := range img.Sections {
		var secName []byte
		for _, b := range s.Name {
			if b == 0 {
				break
			}
			secName = append(secName, byte(b))
		}
		names = append(names, string(secName))
	}
	return names
}

// String summarizes the image for diagnostics.
func (img *Image) String() string {
	kind := "exe"
	if img.IsDLL() {
		kind = "dll"
	}
	return fmt.Sprintf("%s %s runtime=%s sections=%s", img.MachineName(), kind,
		img.RuntimeVersion, strings.Join(img.SectionNames(), ","))
}

// IMAGE_FIRST_SECTION returns the file offset of the section table.
func IMAGE_FIRST_SECTION(lfanew LONG, fileHeader IMAGE_FILE_HEADER) int64 {
	var signature DWORD
	return int64(lfanew) + int64(binary.Size(signature)) + int64(binary.Size(fileHeader)) +
		int64(fileHeader.SizeOfOptionalHeader)
}

func readAt(b []byte, offset int64, data any, what string) error {
	if offset < 0 || offset >= int64(len(b)) {
		return &FormatError{Offset: offset, Reason: what + " out of range"}
	}
	rdrBytes := bytes.NewReader(b[offset:])
	if err := binary.Read(rdrBytes, binary.LittleEndian, data); err != nil {
		return &FormatError{Offset: offset, Reason: fmt.Sprintf("truncated %s: %v", what, err)}
	}
	return nil
}
