package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/openshelf/bookreader/internal/entities"
	"github.com/openshelf/bookreader/internal/library"
	"github.com/openshelf/bookreader/internal/pathstore"
)

// ImportCommand imports book files into the library without the server.
type ImportCommand struct {
	Root      string
	ConfigDir string
	Files     []string
}

// NewImportCommand creates a new ImportCommand.
func NewImportCommand() *ImportCommand {
	return &ImportCommand{}
}

// ParseFlags parses command line flags.
func (cmd *ImportCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)

	fs.StringVar(&cmd.Root, "root", "", "Storage root to import into (default: the configured root)")
	fs.StringVar(&cmd.ConfigDir, "config-dir", "", "Preference directory (default: OS user config dir)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s import [options] <file>...\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Import one or more book files (.txt, .epub, .pdf) into the library.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s import ~/Downloads/novel.epub\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s import -root /mnt/books notes.txt paper.pdf\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	cmd.Files = fs.Args()
	if len(cmd.Files) == 0 {
		return fmt.Errorf("no files to import")
	}
	return nil
}

// Run executes the import command.
func (cmd *ImportCommand) Run() error {
	lib, err := openLibrary(cmd.Root, cmd.ConfigDir)
	if err != nil {
		return err
	}

	ctx := context.Background()
	for _, file := range cmd.Files {
		book, err := lib.ImportBook(ctx, file)
		switch {
		case errors.Is(err, entities.ErrDuplicateBook):
			fmt.Printf("= %s already in library as %q (%s)\n", file, book.Title, book.ID[:12])
		case err != nil:
			return fmt.Errorf("import %s: %w", file, err)
		default:
			fmt.Printf("+ %s imported as %q (%s, %s)\n", file, book.Title, book.Format, book.ID[:12])
		}
	}
	return nil
}

// openLibrary activates a library on the explicit root, or on the
// configured one when the flag is empty.
func openLibrary(root, configDir string) (*library.Store, error) {
	if root == "" {
		var paths *pathstore.Store
		var err error
		if configDir != "" {
			paths, err = pathstore.New(configDir)
		} else {
			paths, err = pathstore.NewDefault()
		}
		if err != nil {
			return nil, err
		}
		configured, ok := paths.ConfiguredPath()
		if !ok {
			return nil, fmt.Errorf("no storage root configured; pass -root or run the app once")
		}
		root = configured
	}

	lib := library.New()
	if err := lib.Activate(context.Background(), root); err != nil {
		return nil, err
	}
	return lib, nil
}
