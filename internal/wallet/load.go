package wallet

import (
	"crypto/ecdsa"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

// Key sources.
const (
	SourceEnv      = "env"
	SourceKeystore = "keystore"
	SourceAge      = "age"
	SourceMnemonic = "mnemonic"
)

// Environment variables read by the loader.
const (
	envPrivateKey = "PAYCART_PRIVATE_KEY"       // #nosec G101 -- variable name, not a credential
	envMnemonic   = "PAYCART_MNEMONIC"          // #nosec G101 -- variable name, not a credential
	envPassphrase = "PAYCART_WALLET_PASSPHRASE" // #nosec G101 -- variable name, not a credential
)

// PassphraseFunc prompts for a passphrase when none is in the environment.
type PassphraseFunc func(prompt string) (string, error)

// LoadOptions selects and unlocks a key.
type LoadOptions struct {
	Source         string
	Path           string
	DerivationPath string
	MemoryLock     bool
	Passphrase     PassphraseFunc
	Confirm        ConfirmFunc
	Getenv         func(string) string
}

// Load builds a signer from the configured key source:
//
//	env       PAYCART_PRIVATE_KEY, hex encoded
//	keystore  go-ethereum JSON keystore file at Path
//	age       age scrypt-encrypted hex key at Path
//	mnemonic  PAYCART_MNEMONIC, or a file at Path, derived at DerivationPath
func Load(opts LoadOptions) (*KeySigner, error) {
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}

	var (
		key *ecdsa.PrivateKey
		err error
	)
	switch opts.Source {
	case SourceEnv, "":
		key, err = keyFromHex(opts.Getenv(envPrivateKey))
	case SourceKeystore:
		key, err = loadKeystore(opts)
	case SourceAge:
		key, err = loadAge(opts)
	case SourceMnemonic:
		key, err = loadMnemonic(opts)
	default:
		err = paycarterr.WithDetails(paycarterr.ErrConfigInvalid, map[string]string{"wallet.source": opts.Source})
	}
	if err != nil {
		return nil, err
	}
	return NewKeySigner(key, opts.Confirm, opts.MemoryLock), nil
}

func keyFromHex(raw string) (*ecdsa.PrivateKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, paycarterr.WithSuggestion(paycarterr.ErrWalletUnavailable,
			"Set PAYCART_PRIVATE_KEY or choose another wallet.source")
	}
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X")

	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, paycarterr.WithCause(paycarterr.ErrInvalidInput, err)
	}
	return key, nil
}

func readSecretFile(path string) ([]byte, error) {
	if path == "" {
		return nil, paycarterr.WithSuggestion(paycarterr.ErrWalletUnavailable, "Set wallet.path to the key file")
	}
	// #nosec G304 -- key file path is from user config
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, paycarterr.WithCause(paycarterr.ErrWalletUnavailable, err)
	}
	return data, nil
}

func passphrase(opts LoadOptions, prompt string) (string, error) {
	if p := opts.Getenv(envPassphrase); p != "" {
		return p, nil
	}
	if opts.Passphrase == nil {
		return "", paycarterr.WithSuggestion(paycarterr.ErrWalletUnavailable, "Set PAYCART_WALLET_PASSPHRASE")
	}
	return opts.Passphrase(prompt)
}

func loadKeystore(opts LoadOptions) (*ecdsa.PrivateKey, error) {
	data, err := readSecretFile(opts.Path)
	if err != nil {
		return nil, err
	}
	pass, err := passphrase(opts, "Keystore passphrase: ")
	if err != nil {
		return nil, err
	}
	k, err := keystore.DecryptKey(data, pass)
	if err != nil {
		return nil, paycarterr.WithCause(paycarterr.ErrDecryptionFailed, err)
	}
	return k.PrivateKey, nil
}

func loadAge(opts LoadOptions) (*ecdsa.PrivateKey, error) {
	data, err := readSecretFile(opts.Path)
	if err != nil {
		return nil, err
	}
	pass, err := passphrase(opts, "Wallet passphrase: ")
	if err != nil {
		return nil, err
	}
	secret, err := Open(data, pass, opts.MemoryLock)
	if err != nil {
		return nil, paycarterr.WithCause(paycarterr.ErrDecryptionFailed, err)
	}
	defer secret.Destroy()
	return keyFromHex(string(secret.Bytes()))
}

func loadMnemonic(opts LoadOptions) (*ecdsa.PrivateKey, error) {
	phrase := opts.Getenv(envMnemonic)
	if phrase == "" && opts.Path != "" {
		data, err := readSecretFile(opts.Path)
		if err != nil {
			return nil, err
		}
		defer zero(data)
		phrase = string(data)
	}
	if phrase == "" {
		return nil, paycarterr.WithSuggestion(paycarterr.ErrWalletUnavailable, "Set PAYCART_MNEMONIC or wallet.path")
	}
	path := opts.DerivationPath
	if path == "" {
		path = "m/44'/60'/0'/0/0"
	}
	return DeriveKey(phrase, "", path)
}

// SealKey encrypts a hex private key for the age source.
func SealKey(key *ecdsa.PrivateKey, pass string) ([]byte, error) {
	raw := []byte(hexutil.Encode(crypto.FromECDSA(key)))
	defer zero(raw)
	return Seal(raw, pass)
}
