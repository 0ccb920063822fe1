package cmd

import (
	"bufio"
	"os"

	"github.com/spf13/cobra"

	"github.com/andreyvit/tuplekv/fsync"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <file>",
	Short: "Export every pair to a snapshot file",
	Long: `Dump writes a checksummed snapshot of the whole store, including the
commit version. Restore it into an empty (or disposable) store with
"tuplekv restore".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		f, err := os.Create(args[0])
		if err != nil {
			return err
		}
		w := bufio.NewWriter(f)
		n, err := db.Export(w)
		if err == nil {
			err = w.Flush()
		}
		if err == nil {
			err = fsync.Datasync(f)
		}
		if err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		cmd.Printf("exported %d records to %s\n", n, args[0])
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <file>",
	Short: "Replace the store's contents with a snapshot file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		n, err := db.Import(bufio.NewReader(f))
		if err != nil {
			return err
		}
		cmd.Printf("imported %d records from %s\n", n, args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(restoreCmd)
}
