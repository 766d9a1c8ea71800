package evm

import (
	"bytes"
	"encoding/binary"
	"regexp"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/contraharness/internal/chains"
)

// CBOR metadata marker (Solidity >=0.6.0) - "ipfs" in CBOR
var metadataMarker = []byte{0xa2, 0x64, 0x69, 0x70, 0x66, 0x73}

// Library placeholder pattern: __$<34 hex chars>$__
var libraryPlaceholder = regexp.MustCompile(`__\$[a-fA-F0-9]{34}\$__`)

// StripMetadata removes the CBOR metadata appended to bytecode
func StripMetadata(bytecode []byte) []byte {
	// solc appends the CBOR map followed by its 2-byte big-endian length
	if n := len(bytecode); n > 2 {
		size := int(binary.BigEndian.Uint16(bytecode[n-2:]))
		start := n - 2 - size
		if size > 0 && start >= 0 && bytecode[start]>>5 == 5 {
			return bytecode[:start]
		}
	}

	// Fall back to the last occurrence of the metadata marker
	idx := bytes.LastIndex(bytecode, metadataMarker)
	if idx == -1 {
		return bytecode
	}
	return bytecode[:idx]
}

// CompareCode compares on-chain runtime code to the artifact's deployed bytecode
func CompareCode(deployed []byte, artifactHex string) chains.CodeMatch {
	if len(deployed) == 0 {
		return chains.CodeMatch{
			Match:     false,
			MatchType: chains.MatchNone,
			Message:   "No code at address",
		}
	}
	if HasLibraryPlaceholders(artifactHex) {
		return chains.CodeMatch{
			Match:     false,
			MatchType: chains.MatchNone,
			Message:   "Artifact bytecode has unlinked library placeholders",
		}
	}
	artifact := common.FromHex(artifactHex)

	if bytes.Equal(deployed, artifact) {
		return chains.CodeMatch{
			Match:     true,
			MatchType: chains.MatchFull,
			Message:   "Bytecode matches exactly including metadata",
		}
	}

	if bytes.Equal(StripMetadata(deployed), StripMetadata(artifact)) {
		return chains.CodeMatch{
			Match:     true,
			MatchType: chains.MatchPartial,
			Message:   "Executable code matches, metadata differs",
		}
	}

	return chains.CodeMatch{
		Match:     false,
		MatchType: chains.MatchNone,
		Message:   "Bytecode does not match",
	}
}

// HasLibraryPlaceholders checks if hex bytecode contains unlinked library placeholders
func HasLibraryPlaceholders(bytecodeHex string) bool {
	return libraryPlaceholder.MatchString(bytecodeHex)
}
