package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

// MaxTypoDistance is the largest edit distance offered as a suggestion.
const MaxTypoDistance = 2

var (
	whitespaceRegex   = regexp.MustCompile(`\s+`)
	numberedListRegex = regexp.MustCompile(`(?m)^\s*\d+[\.\)\:]\s*`)
	bulletListRegex   = regexp.MustCompile(`(?m)^\s*[-*•]\s*`)
)

// NormalizeMnemonic lowercases the phrase, strips list numbering, bullets
// and commas, and collapses whitespace.
func NormalizeMnemonic(input string) string {
	input = strings.ToLower(input)
	input = numberedListRegex.ReplaceAllString(input, " ")
	input = bulletListRegex.ReplaceAllString(input, " ")
	input = strings.ReplaceAll(input, ",", " ")
	input = whitespaceRegex.ReplaceAllString(input, " ")
	return strings.TrimSpace(input)
}

// ValidateMnemonic checks word count, word list membership and checksum.
// Misspelled words are reported with suggestions in the error details.
func ValidateMnemonic(mnemonic string) error {
	normalized := NormalizeMnemonic(mnemonic)
	words := strings.Fields(normalized)
	switch len(words) {
	case 12, 15, 18, 21, 24:
	default:
		return paycarterr.WithDetails(paycarterr.ErrInvalidMnemonic, map[string]string{
			"words": strconv.Itoa(len(words)),
		})
	}

	if typos := detectTypos(words); len(typos) > 0 {
		return paycarterr.WithDetails(paycarterr.ErrInvalidMnemonic, typos)
	}
	if !bip39.IsMnemonicValid(normalized) {
		return paycarterr.WithDetails(paycarterr.ErrInvalidMnemonic, map[string]string{"checksum": "mismatch"})
	}
	return nil
}

// detectTypos maps "word N" to a suggestion for every word outside the
// BIP39 list.
func detectTypos(words []string) map[string]string {
	known := make(map[string]struct{}, 2048)
	for _, w := range bip39.GetWordList() {
		known[w] = struct{}{}
	}

	typos := map[string]string{}
	for i, word := range words {
		if _, ok := known[word]; ok {
			continue
		}
		key := fmt.Sprintf("word %d", i+1)
		if s := suggestWord(word); s != "" {
			typos[key] = fmt.Sprintf("%q, did you mean %q?", word, s)
		} else {
			typos[key] = fmt.Sprintf("%q is not a BIP39 word", word)
		}
	}
	return typos
}

func suggestWord(input string) string {
	best, bestDist := "", math.MaxInt
	for _, word := range bip39.GetWordList() {
		d := levenshtein.ComputeDistance(input, word)
		if d < bestDist {
			best, bestDist = word, d
		}
	}
	if bestDist <= MaxTypoDistance {
		return best
	}
	return ""
}

// DeriveKey derives the secp256k1 key at path (e.g. m/44'/60'/0'/0/0)
// from a BIP39 mnemonic and optional passphrase.
func DeriveKey(mnemonic, passphrase, path string) (*ecdsa.PrivateKey, error) {
	if err := ValidateMnemonic(mnemonic); err != nil {
		return nil, err
	}
	indexes, err := parsePath(path)
	if err != nil {
		return nil, err
	}

	seed := bip39.NewSeed(NormalizeMnemonic(mnemonic), passphrase)
	defer zero(seed)

	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, paycarterr.WithCause(paycarterr.ErrInvalidMnemonic, err)
	}
	for _, idx := range indexes {
		if key, err = key.NewChildKey(idx); err != nil {
			return nil, paycarterr.WithCause(paycarterr.ErrInvalidMnemonic, err)
		}
	}

	raw := common.LeftPadBytes(key.Key, 32)
	defer zero(raw)
	return crypto.ToECDSA(raw)
}

func parsePath(path string) ([]uint32, error) {
	invalid := paycarterr.WithDetails(paycarterr.ErrInvalidInput, map[string]string{"derivation_path": path})

	parts := strings.Split(strings.TrimSpace(path), "/")
	if len(parts) < 2 || parts[0] != "m" {
		return nil, invalid
	}

	indexes := make([]uint32, 0, len(parts)-1)
	for _, part := range parts[1:] {
		hardened := strings.HasSuffix(part, "'") || strings.HasSuffix(part, "h")
		part = strings.TrimRight(part, "'h")
		n, err := strconv.ParseUint(part, 10, 31)
		if err != nil {
			return nil, invalid
		}
		idx := uint32(n)
		if hardened {
			idx += bip32.FirstHardenedChild
		}
		indexes = append(indexes, idx)
	}
	return indexes, nil
}
