package foundry

import (
	"encoding/json"
	"sort"
)

// Artifact represents the structure of a Foundry artifact JSON file
type Artifact struct {
	ABI              json.RawMessage `json:"abi"`
	Bytecode         BytecodeObject  `json:"bytecode"`
	DeployedBytecode BytecodeObject  `json:"deployedBytecode"`
	RawMetadata      string          `json:"rawMetadata"`
}

// BytecodeObject represents bytecode in a Foundry artifact
type BytecodeObject struct {
	Object         string         `json:"object"`
	LinkReferences LinkReferences `json:"linkReferences"`
}

// LinkReferences maps source path -> library name -> placeholder offsets
type LinkReferences map[string]map[string][]Link

// Link represents a library link reference
type Link struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

// Names returns the fully qualified library names, sorted
func (l LinkReferences) Names() []string {
	var names []string
	for source, libs := range l {
		for lib := range libs {
			names = append(names, source+":"+lib)
		}
	}
	sort.Strings(names)
	return names
}

// Metadata represents the parsed rawMetadata field
type Metadata struct {
	Compiler struct {
		Version string `json:"version"`
	} `json:"compiler"`
	Settings struct {
		CompilationTarget map[string]string `json:"compilationTarget"`
	} `json:"settings"`
}
