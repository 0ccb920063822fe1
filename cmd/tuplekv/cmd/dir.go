package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andreyvit/tuplekv"
	"github.com/andreyvit/tuplekv/directory"
)

var dirCmd = &cobra.Command{
	Use:   "dir",
	Short: "Manage the directory hierarchy",
	Long: `Directories map slash-separated paths like app/users to short key
prefixes. Moving a directory is a metadata update and never rewrites its
contents.`,
}

var dirLsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List subdirectories",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var path []string
		if len(args) == 1 {
			path = splitDirPath(args[0])
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		return db.ReadErr(func(tx *tuplekv.Tx) error {
			names, err := directory.New().List(tx, path)
			if err != nil {
				return err
			}
			for _, name := range names {
				cmd.Println(name)
			}
			return nil
		})
	},
}

var (
	dirLayerTag  string
	dirPrefixHex string
)

var dirMkCmd = &cobra.Command{
	Use:     "mk <path>",
	Short:   "Create a directory",
	Example: `  tuplekv dir mk app/users --layer table`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := splitDirPath(args[0])
		if len(path) == 0 {
			return fmt.Errorf("empty directory path")
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		return db.Tx(true, func(tx *tuplekv.Tx) error {
			l := directory.New()
			var d directory.Dir
			if dirPrefixHex != "" {
				prefix, err := parseHex(dirPrefixHex)
				if err != nil {
					return err
				}
				d, err = l.CreatePrefix(tx, path, []byte(dirLayerTag), prefix)
				if err != nil {
					return err
				}
			} else {
				var err error
				d, err = l.Create(tx, path, []byte(dirLayerTag))
				if err != nil {
					return err
				}
			}
			cmd.Printf("created %s at prefix %x\n", args[0], d.Bytes())
			return nil
		})
	},
}

var dirRmCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Remove a directory, its subdirectories and their contents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := splitDirPath(args[0])
		if len(path) == 0 {
			return fmt.Errorf("empty directory path")
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		return db.Tx(true, func(tx *tuplekv.Tx) error {
			ok, err := directory.New().Remove(tx, path)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("directory %s does not exist", args[0])
			}
			return nil
		})
	},
}

var dirMvCmd = &cobra.Command{
	Use:     "mv <old> <new>",
	Short:   "Move a directory to a new path",
	Example: `  tuplekv dir mv app/logs archive/logs2024`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		oldPath := splitDirPath(args[0])
		newPath := splitDirPath(args[1])
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		return db.Tx(true, func(tx *tuplekv.Tx) error {
			_, err := directory.New().Move(tx, oldPath, newPath)
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(dirCmd)
	dirCmd.AddCommand(dirLsCmd)
	dirCmd.AddCommand(dirMkCmd)
	dirCmd.AddCommand(dirRmCmd)
	dirCmd.AddCommand(dirMvCmd)
	dirMkCmd.Flags().StringVar(&dirLayerTag, "layer", "", "layer tag recorded with the directory")
	dirMkCmd.Flags().StringVar(&dirPrefixHex, "prefix", "", "manual prefix (hex) instead of an allocated one")
}

func splitDirPath(s string) []string {
	s = strings.Trim(s, "/")
	if s == "" {
		return nil
	}
	return strings.Split(s, "/")
}
