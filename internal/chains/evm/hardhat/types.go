package hardhat

import (
	"encoding/json"
	"sort"
)

// Artifact is the hh-sol-artifact-1 file written per contract
type Artifact struct {
	Format                 string          `json:"_format"`
	ContractName           string          `json:"contractName"`
	SourceName             string          `json:"sourceName"`
	ABI                    json.RawMessage `json:"abi"`
	Bytecode               string          `json:"bytecode"`
	DeployedBytecode       string          `json:"deployedBytecode"`
	LinkReferences         LinkReferences  `json:"linkReferences"`
	DeployedLinkReferences LinkReferences  `json:"deployedLinkReferences"`
}

// LinkReferences maps source name -> library name -> placeholder offsets
type LinkReferences map[string]map[string][]LinkOffset

// LinkOffset locates one library placeholder in the bytecode
type LinkOffset struct {
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

// DebugFile is the Contract.dbg.json file pointing at the build-info
type DebugFile struct {
	Format    string `json:"_format"`
	BuildInfo string `json:"buildInfo"`
}
