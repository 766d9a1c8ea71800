package evm

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/contraharness/internal/chains"
)

// runtime code followed by a CBOR map {"ipfs": <2 bytes>} and its length
const (
	runtimeHex  = "6080604052348015600f57600080fd5b50"
	metadataA   = "a2646970667342aaaa" + "0009"
	metadataB   = "a2646970667342bbbb" + "0009"
	runtimeOnly = "0x" + runtimeHex
)

func TestStripMetadata(t *testing.T) {
	tests := []struct {
		name     string
		bytecode string
		want     string
	}{
		{
			name:     "bytecode without metadata",
			bytecode: runtimeHex,
			want:     runtimeHex,
		},
		{
			name:     "bytecode with length-prefixed metadata",
			bytecode: runtimeHex + metadataA,
			want:     runtimeHex,
		},
		{
			name:     "marker without valid length",
			bytecode: runtimeHex + "a264697066735822",
			want:     runtimeHex,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StripMetadata(common.FromHex(tt.bytecode))
			assert.Equal(t, common.FromHex(tt.want), got)
		})
	}
}

func TestCompareCode(t *testing.T) {
	tests := []struct {
		name      string
		deployed  string
		artifact  string
		wantMatch bool
		wantType  string
	}{
		{
			name:      "exact match",
			deployed:  runtimeHex + metadataA,
			artifact:  "0x" + runtimeHex + metadataA,
			wantMatch: true,
			wantType:  chains.MatchFull,
		},
		{
			name:      "metadata differs",
			deployed:  runtimeHex + metadataA,
			artifact:  "0x" + runtimeHex + metadataB,
			wantMatch: true,
			wantType:  chains.MatchPartial,
		},
		{
			name:      "different code",
			deployed:  "6001600101" + metadataA,
			artifact:  runtimeOnly,
			wantMatch: false,
			wantType:  chains.MatchNone,
		},
		{
			name:      "no code",
			deployed:  "",
			artifact:  runtimeOnly,
			wantMatch: false,
			wantType:  chains.MatchNone,
		},
		{
			name:      "unlinked artifact",
			deployed:  runtimeHex,
			artifact:  "0x73__$1234567890abcdef1234567890abcdef12$__6080",
			wantMatch: false,
			wantType:  chains.MatchNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CompareCode(common.FromHex(tt.deployed), tt.artifact)
			assert.Equal(t, tt.wantMatch, result.Match)
			assert.Equal(t, tt.wantType, result.MatchType)
			assert.NotEmpty(t, result.Message)
		})
	}
}

func TestHasLibraryPlaceholders(t *testing.T) {
	assert.False(t, HasLibraryPlaceholders("0x608060405234801561001057600080fd5b50"))
	assert.True(t, HasLibraryPlaceholders("0x73__$1234567890abcdef1234567890abcdef12$__6080"))
}

func TestBuilderByName(t *testing.T) {
	b, err := BuilderByName("hardhat")
	require.NoError(t, err)
	assert.Equal(t, "hardhat", b.Name())

	_, err = BuilderByName("truffle")
	assert.Error(t, err)
}
