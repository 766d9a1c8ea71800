// Package validation provides input validation for contraharness.
package validation

import (
	"errors"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/mod/semver"
)

// Solidity identifiers: letters, digits, underscore and dollar, not starting with a digit
var identifierRegex = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// ValidateContractName validates a contract name as it appears in build artifacts
func ValidateContractName(name string) error {
	if name == "" {
		return errors.New("contract name cannot be empty")
	}
	if len(name) > 128 {
		return errors.New("contract name too long (max 128 chars)")
	}
	if !identifierRegex.MatchString(name) {
		return errors.New("invalid contract name: must be a Solidity identifier")
	}
	return nil
}

// ValidateMethodName validates a method name, either bare ("createLobby")
// or with a signature ("createLobby(address,uint256)")
func ValidateMethodName(name string) error {
	if name == "" {
		return errors.New("method name cannot be empty")
	}
	bare := name
	if i := strings.IndexByte(name, '('); i >= 0 {
		if !strings.HasSuffix(name, ")") {
			return errors.New("invalid method signature: missing closing parenthesis")
		}
		bare = name[:i]
	}
	if !identifierRegex.MatchString(bare) {
		return errors.New("invalid method name: must be a Solidity identifier")
	}
	return nil
}

// ValidateReleaseLabel validates an optional semantic version label attached to a deployment
func ValidateReleaseLabel(v string) error {
	normalized := strings.TrimPrefix(v, "v")
	if normalized == "" {
		return errors.New("release label cannot be empty")
	}

	// semver library expects version to start with 'v'
	if !semver.IsValid("v" + normalized) {
		return errors.New("invalid release label: must be in format X.Y.Z or X.Y.Z-prerelease")
	}

	// semver.IsValid accepts "v1" and "v1.2"; require all three parts
	mainPart := strings.SplitN(strings.SplitN(normalized, "+", 2)[0], "-", 2)[0]
	if strings.Count(mainPart, ".") < 2 {
		return errors.New("invalid release label: must be in format X.Y.Z (major.minor.patch)")
	}
	return nil
}

// NormalizeReleaseLabel strips a leading 'v'
func NormalizeReleaseLabel(v string) string {
	return strings.TrimPrefix(v, "v")
}

// CompareReleaseLabels returns -1 if a < b, 0 if equal, 1 if a > b
func CompareReleaseLabels(a, b string) int {
	return semver.Compare("v"+NormalizeReleaseLabel(a), "v"+NormalizeReleaseLabel(b))
}

// LatestReleaseLabel returns the highest label, preferring stable releases
func LatestReleaseLabel(labels []string) string {
	var latest, latestPre string
	for _, l := range labels {
		if l == "" {
			continue
		}
		if semver.Prerelease("v"+NormalizeReleaseLabel(l)) != "" {
			if latestPre == "" || CompareReleaseLabels(l, latestPre) > 0 {
				latestPre = l
			}
			continue
		}
		if latest == "" || CompareReleaseLabels(l, latest) > 0 {
			latest = l
		}
	}
	if latest == "" {
		return latestPre
	}
	return latest
}

// ValidateAddress validates a hex-encoded account address
func ValidateAddress(addr string) error {
	if len(addr) != 42 {
		return errors.New("invalid address length: must be 42 characters (0x + 40 hex)")
	}
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return errors.New("invalid address: must start with 0x")
	}
	if !common.IsHexAddress(addr) {
		return errors.New("invalid address: contains non-hex characters")
	}
	return nil
}

// ValidateTxHash validates a 32-byte hex transaction hash
func ValidateTxHash(hash string) error {
	if len(hash) != 66 || !strings.HasPrefix(hash, "0x") {
		return errors.New("invalid transaction hash: must be 0x followed by 64 hex characters")
	}
	for _, c := range hash[2:] {
		if !isHex(c) {
			return errors.New("invalid transaction hash: contains non-hex characters")
		}
	}
	return nil
}

// ValidateChainID validates a chain ID
func ValidateChainID(chainID int64) error {
	if chainID <= 0 {
		return errors.New("chain ID must be positive")
	}
	return nil
}

func isHex(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
