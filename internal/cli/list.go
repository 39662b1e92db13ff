package cli

import (
	"flag"
	"fmt"
	"os"
)

// ListCommand prints the library contents.
type ListCommand struct {
	Root      string
	ConfigDir string
}

// NewListCommand creates a new ListCommand.
func NewListCommand() *ListCommand {
	return &ListCommand{}
}

// ParseFlags parses command line flags.
func (cmd *ListCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)

	fs.StringVar(&cmd.Root, "root", "", "Storage root to list (default: the configured root)")
	fs.StringVar(&cmd.ConfigDir, "config-dir", "", "Preference directory (default: OS user config dir)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s list [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "List the books in the library, most recently read first.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	return fs.Parse(args)
}

// Run executes the list command.
func (cmd *ListCommand) Run() error {
	lib, err := openLibrary(cmd.Root, cmd.ConfigDir)
	if err != nil {
		return err
	}

	books := lib.ListBooks()
	if len(books) == 0 {
		fmt.Println("Library is empty.")
		return nil
	}

	for _, b := range books {
		fmt.Printf("%-12s  %-5s  %5.1f%%  %s\n", b.ID[:12], b.Format, b.Progress.Fraction*100, b.Title)
	}
	fmt.Printf("\n%d book(s)\n", len(books))
	return nil
}
