package cmd

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/andreyvit/tuplekv/tuple"
)

// decodeCmd turns a hex key back into a readable tuple.
var decodeCmd = &cobra.Command{
	Use:   "decode <hex>",
	Short: "Decode a hex-encoded key into a tuple",
	Example: `  tuplekv decode 02757365727300152a
  tuplekv decode '0x02 75 73 65 72 73 00 15 2a'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := parseHex(args[0])
		if err != nil {
			return err
		}
		t, err := tuple.Unpack(raw)
		if err != nil {
			return fmt.Errorf("failed to decode tuple: %w", err)
		}
		cmd.Println(t.String())
		return nil
	},
}

// encodeCmd packs a JSON array into a hex key.
var encodeCmd = &cobra.Command{
	Use:     "encode <json-array>",
	Short:   "Encode a JSON array into a hex key",
	Example: `  tuplekv encode '["users", 42]'`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := parseTuple(args[0])
		if err != nil {
			return err
		}
		cmd.Println(hex.EncodeToString(t.Pack()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(encodeCmd)
}

// parseHex accepts hex with an optional 0x prefix and embedded spaces.
func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return raw, nil
}

// parseTuple reads a JSON array into a tuple. Numbers become int64, uint64,
// big.Int or float64, in that order of preference.
func parseTuple(s string) (tuple.Tuple, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after the JSON array")
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("want a JSON array, got %T", v)
	}
	return tupleFromJSON(arr)
}

func tupleFromJSON(arr []any) (tuple.Tuple, error) {
	t := make(tuple.Tuple, 0, len(arr))
	for _, el := range arr {
		switch el := el.(type) {
		case nil:
			t = append(t, nil)
		case string:
			t = append(t, el)
		case bool:
			t = append(t, el)
		case json.Number:
			t = append(t, numberElement(el))
		case []any:
			sub, err := tupleFromJSON(el)
			if err != nil {
				return nil, err
			}
			t = append(t, sub)
		default:
			return nil, fmt.Errorf("unsupported element %v (%T)", el, el)
		}
	}
	return t, nil
}

func numberElement(num json.Number) any {
	s := num.String()
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return u
	}
	if b, ok := new(big.Int).SetString(s, 10); ok {
		return b
	}
	f, _ := num.Float64()
	return f
}

// formatValue renders readable values as quoted strings and everything else
// as hex.
func formatValue(v []byte) string {
	if utf8.Valid(v) && !strings.ContainsFunc(string(v), isUnprintable) {
		return strconv.Quote(string(v))
	}
	return "0x" + hex.EncodeToString(v)
}

func isUnprintable(r rune) bool {
	return r < 0x20 || r == 0x7F
}

// formatKey renders a key as a tuple when it decodes, as hex otherwise.
func formatKey(k []byte) string {
	if t, err := tuple.Unpack(k); err == nil {
		return t.String()
	}
	return "0x" + hex.EncodeToString(k)
}
