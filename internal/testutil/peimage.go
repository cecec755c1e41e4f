// Package testutil builds synthetic managed PE images for tests.
//
// The images are never executed. They carry just enough structure (DOS and NT
// headers, one .text section, a CLI header and a metadata root) to pass the
// validation done by package assembly, so that the hosting layer can be
// exercised against a fake runtime on any platform.
package testutil

import (
	"encoding/binary"
)

// Layout of the generated image.
const (
	ntHeaderOffset   = 0x80
	fileHeaderSize   = 20
	optHeader32Size  = 224
	optHeader64Size  = 240
	sectionRawOffset = 0x200
	sectionRVA       = 0x2000
	sectionSize      = 0x200
	metadataRVA      = sectionRVA + 0x50
	tagOffset        = sectionRawOffset + 0x100
	imageSize        = sectionRawOffset + sectionSize

	// EntryPointToken is the MethodDef token written for executables.
	EntryPointToken = 0x06000001
)

// ImageOptions controls the generated image.
type ImageOptions struct {
	PE32Plus     bool
	DLL          bool
	NoEntryPoint bool
	NoCLIHeader  bool
	// Machine overrides the machine type implied by PE32Plus.
	Machine uint16
	// Require32Bit sets COMIMAGE_FLAGS_32BITREQUIRED.
	Require32Bit bool
	// MixedMode clears COMIMAGE_FLAGS_ILONLY.
	MixedMode bool
	// RuntimeVersion defaults to "v4.0.30319".
	RuntimeVersion string
	// Tag is copied into the section body so that otherwise identical
	// images differ byte-wise.
	Tag string
}

// PEImage returns a minimal managed image built from opts.
func PEImage(opts ImageOptions) []byte {
	b := make([]byte, imageSize)
	le := binary.LittleEndian

	// DOS header
	le.PutUint16(b[0:], 0x5A4D)
	le.PutUint32(b[0x3C:], ntHeaderOffset)

	// NT signature and file header
	le.PutUint32(b[ntHeaderOffset:], 0x00004550)
	fh := ntHeaderOffset + 4
	machine, optSize := uint16(0x014c), uint16(optHeader32Size)
	if opts.PE32Plus {
		machine, optSize = 0x8664, optHeader64Size
	}
	if opts.Machine != 0 {
		machine = opts.Machine
	}
	characteristics := uint16(0x0002 | 0x0100)
	if opts.DLL {
		characteristics |= 0x2000
	}
	le.PutUint16(b[fh:], machine)
	le.PutUint16(b[fh+2:], 1)
	le.PutUint16(b[fh+16:], optSize)
	le.PutUint16(b[fh+18:], characteristics)

	// Optional header
	oh := fh + fileHeaderSize
	dirOffset, countOffset := oh+96, oh+92
	if opts.PE32Plus {
		le.PutUint16(b[oh:], 0x20b)
		dirOffset, countOffset = oh+112, oh+108
	} else {
		le.PutUint16(b[oh:], 0x10b)
	}
	le.PutUint16(b[oh+68:], 3) // IMAGE_SUBSYSTEM_WINDOWS_CUI
	le.PutUint32(b[countOffset:], 16)
	if !opts.NoCLIHeader {
		le.PutUint32(b[dirOffset+14*8:], sectionRVA)
		le.PutUint32(b[dirOffset+14*8+4:], 72)
	}

	// Section table
	sh := oh + int(optSize)
	copy(b[sh:], ".text")
	le.PutUint32(b[sh+8:], sectionSize)
	le.PutUint32(b[sh+12:], sectionRVA)
	le.PutUint32(b[sh+16:], sectionSize)
	le.PutUint32(b[sh+20:], sectionRawOffset)
	le.PutUint32(b[sh+36:], 0x60000020)

	// CLI header
	cor := sectionRawOffset
	le.PutUint32(b[cor:], 72)
	le.PutUint16(b[cor+4:], 2)
	le.PutUint16(b[cor+6:], 5)
	le.PutUint32(b[cor+8:], metadataRVA)
	le.PutUint32(b[cor+12:], 0x80)
	var flags uint32
	if !opts.MixedMode {
		flags |= 0x00000001 // COMIMAGE_FLAGS_ILONLY
	}
	if opts.Require32Bit {
		flags |= 0x00000002 // COMIMAGE_FLAGS_32BITREQUIRED
	}
	le.PutUint32(b[cor+16:], flags)
	if !opts.NoEntryPoint {
		le.PutUint32(b[cor+20:], EntryPointToken)
	}

	// Metadata root
	version := opts.RuntimeVersion
	if version == "" {
		version = "v4.0.30319"
	}
	length := (len(version) + 1 + 3) &^ 3
	md := sectionRawOffset + (metadataRVA - sectionRVA)
	le.PutUint32(b[md:], 0x424A5342)
	le.PutUint16(b[md+4:], 1)
	le.PutUint16(b[md+6:], 1)
	le.PutUint32(b[md+12:], uint32(length))
	copy(b[md+16:], version)

	copy(b[tagOffset:imageSize], opts.Tag)
	return b
}

// ImageTag returns the Tag an image was built with.
func ImageTag(b []byte) string {
	if len(b) < imageSize {
		return ""
	}
	tag := b[tagOffset:imageSize]
	for i, c := range tag {
		if c == 0 {
			return string(tag[:i])
		}
	}
	return string(tag)
}
