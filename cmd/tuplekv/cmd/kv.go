package cmd

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andreyvit/tuplekv"
)

var getCmd = &cobra.Command{
	Use:     "get <key>",
	Short:   "Read the value at a tuple key",
	Example: `  tuplekv get '["users", 42]'`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := parseTuple(args[0])
		if err != nil {
			return err
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		var value []byte
		db.Read(func(tx *tuplekv.Tx) {
			value = bytes.Clone(tx.Get(key.Pack()))
		})
		if value == nil {
			return fmt.Errorf("key %s not found", key)
		}
		cmd.Println(formatValue(value))
		return nil
	},
}

var setHex bool

var setCmd = &cobra.Command{
	Use:     "set <key> <value>",
	Short:   "Write a value at a tuple key",
	Example: `  tuplekv set '["users", 42]' alice`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := parseTuple(args[0])
		if err != nil {
			return err
		}
		value := []byte(args[1])
		if setHex {
			value, err = parseHex(args[1])
			if err != nil {
				return err
			}
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		return db.Tx(true, func(tx *tuplekv.Tx) error {
			return tx.Set(key.Pack(), value)
		})
	},
}

var delCmd = &cobra.Command{
	Use:     "del <key>",
	Short:   "Delete a tuple key",
	Example: `  tuplekv del '["users", 42]'`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := parseTuple(args[0])
		if err != nil {
			return err
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		return db.Tx(true, func(tx *tuplekv.Tx) error {
			return tx.Clear(key.Pack())
		})
	},
}

var (
	listReverse bool
	listLimit   int
)

var listCmd = &cobra.Command{
	Use:   "list [prefix]",
	Short: "List pairs under a tuple prefix, or the whole store",
	Example: `  tuplekv list
  tuplekv list '["users"]' -n 10 --reverse`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rang := tuplekv.RawOO()
		if len(args) == 1 {
			prefix, err := parseTuple(args[0])
			if err != nil {
				return err
			}
			rang = tuplekv.RawPrefix(prefix.Pack())
		}
		if listReverse {
			rang = rang.Reversed()
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		db.Read(func(tx *tuplekv.Tx) {
			n := 0
			for c := tx.Scan(rang); c.Next(); {
				cmd.Printf("%s = %s\n", formatKey(c.Key()), formatValue(c.Value()))
				n++
				if listLimit > 0 && n >= listLimit {
					break
				}
			}
		})
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(delCmd)
	rootCmd.AddCommand(listCmd)
	setCmd.Flags().BoolVar(&setHex, "hex", false, "treat <value> as hex")
	listCmd.Flags().BoolVar(&listReverse, "reverse", false, "descending key order")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "stop after this many pairs (0 = all)")
}
