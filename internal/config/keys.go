package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"gopkg.in/yaml.v3"

	paycarterr "github.com/mrz1836/paycart/pkg/errors"
)

// secretKeys are never printed by Get.
//
//nolint:gochecknoglobals // read-only lookup table
var secretKeys = map[string]bool{
	"backend.admin_token": true,
}

// toTree converts the config into a generic YAML tree.
func toTree(c *Config) (map[string]any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, err
	}
	tree := map[string]any{}
	if err = yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// KeyPaths lists every settable dot-separated key, sorted. Optional keys
// that are currently empty are included.
func KeyPaths() []string {
	full := Defaults()
	full.Chain.WalletRPC = "-"
	full.Chain.Lending.Pool = "-"
	full.Chain.Lending.Oracle = "-"
	full.Backend.AdminToken = "-"
	full.Backend.FeedbackHook = "-"
	full.Wallet.Path = "-"
	full.User.Email = "-"
	full.Admin.WalletAddress = "-"
	full.Admin.PrivyID = "-"
	full.Cache.RedisURL = "-"
	full.Notify.KafkaBrokers = []string{"-"}
	full.Telemetry.OTLPEndpoint = "-"

	tree, err := toTree(full)
	if err != nil {
		return nil
	}
	var keys []string
	collectKeys(tree, "", &keys)
	sort.Strings(keys)
	return keys
}

func collectKeys(node map[string]any, prefix string, keys *[]string) {
	for k, v := range node {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			collectKeys(child, path, keys)
			continue
		}
		*keys = append(*keys, path)
	}
}

// Get returns the string form of a config value by dot path.
func Get(c *Config, path string) (string, error) {
	if !isKnownKey(path) {
		return "", unknownKey(path)
	}
	if secretKeys[path] {
		return "<redacted>", nil
	}
	tree, err := toTree(c)
	if err != nil {
		return "", err
	}

	var node any = tree
	for _, part := range strings.Split(path, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return "", unknownKey(path)
		}
		node = m[part]
	}

	switch v := node.(type) {
	case nil:
		return "", nil
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, ","), nil
	default:
		return fmt.Sprint(v), nil
	}
}

// Set updates a config value by dot path. The value is parsed as YAML, so
// "true", "30s" and "0.03" take their natural types; list keys accept a
// comma separated string.
func Set(c *Config, path, value string) error {
	if !isKnownKey(path) {
		return unknownKey(path)
	}
	tree, err := toTree(c)
	if err != nil {
		return err
	}

	parts := strings.Split(path, ".")
	node := tree
	for _, part := range parts[:len(parts)-1] {
		child, ok := node[part].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[part] = child
		}
		node = child
	}

	leaf := parts[len(parts)-1]
	var parsed any
	switch {
	case path == "notify.kafka_brokers":
		parsed = CSV(value)
	case stringKey(path):
		parsed = value
	default:
		if err = yaml.Unmarshal([]byte(value), &parsed); err != nil || parsed == nil {
			parsed = value
		}
	}
	node[leaf] = parsed

	data, err := yaml.Marshal(tree)
	if err != nil {
		return err
	}
	updated := Defaults()
	if err = yaml.Unmarshal(data, updated); err != nil {
		return paycarterr.WithDetails(paycarterr.ErrInvalidInput, map[string]string{
			"key":   path,
			"value": value,
			"error": err.Error(),
		})
	}
	*c = *updated
	return nil
}

// stringKey reports whether the key holds a string, so values such as
// hex addresses are not coerced into numbers.
func stringKey(path string) bool {
	switch path {
	case "chain.chain_id", "version":
		return false
	}
	tree, err := toTree(Defaults())
	if err != nil {
		return false
	}
	var node any = tree
	for _, part := range strings.Split(path, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return false
		}
		v, present := m[part]
		if !present {
			// omitted optional keys are all strings
			return true
		}
		node = v
	}
	_, ok := node.(string)
	return ok
}

func isKnownKey(path string) bool {
	for _, k := range KeyPaths() {
		if k == path {
			return true
		}
	}
	return false
}

// maxKeyDistance bounds the edit distance of a "did you mean" suggestion.
const maxKeyDistance = 3

// SuggestKey returns the known key closest to path, or "" when nothing is
// within maxKeyDistance.
func SuggestKey(path string) string {
	best, bestDist := "", maxKeyDistance+1
	for _, k := range KeyPaths() {
		if d := levenshtein.ComputeDistance(path, k); d < bestDist {
			best, bestDist = k, d
		}
	}
	return best
}

func unknownKey(path string) error {
	err := paycarterr.WithDetails(paycarterr.ErrUnknownConfigKey, map[string]string{"key": path})
	if s := SuggestKey(path); s != "" {
		return paycarterr.WithSuggestion(err, fmt.Sprintf("did you mean %q?", s))
	}
	return paycarterr.WithSuggestion(err, "run 'paycart config show' to list keys")
}
