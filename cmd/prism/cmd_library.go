package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"prism/cmd/prism/ui"
	"prism/internal/api"
	"prism/internal/library"
)

// =============================================================================
// FOLDERS
// =============================================================================

var foldersCmd = &cobra.Command{
	Use:     "folders",
	Aliases: []string{"folder"},
	Short:   "List and manage folders",
	RunE:    runFoldersList,
}

var foldersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List folders with their file counts",
	RunE:  runFoldersList,
}

var foldersCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an empty folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLibrary(cmd, func(lib *library.Library) error {
			f, err := lib.CreateFolder(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printSuccess("created folder %s (%s)", f.Name, f.ID)
			return nil
		})
	},
}

var foldersRenameCmd = &cobra.Command{
	Use:   "rename <folder> <new-name>",
	Short: "Rename a folder (id or name)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLibrary(cmd, func(lib *library.Library) error {
			f, err := findFolder(cmd, lib, args[0])
			if err != nil {
				return err
			}
			if err := lib.RenameFolder(cmd.Context(), f.ID, args[1]); err != nil {
				return err
			}
			printSuccess("renamed %s to %s", f.Name, args[1])
			return nil
		})
	},
}

var foldersDeleteCmd = &cobra.Command{
	Use:   "delete <folder>",
	Short: "Delete a folder (id or name)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLibrary(cmd, func(lib *library.Library) error {
			f, err := findFolder(cmd, lib, args[0])
			if err != nil {
				return err
			}
			if !assumeYes && !confirm(os.Stdin, fmt.Sprintf("Delete folder %s?", f.Name)) {
				printInfo("cancelled")
				return nil
			}
			if err := lib.DeleteFolder(cmd.Context(), f.ID); err != nil {
				return err
			}
			printSuccess("deleted folder %s", f.Name)
			return nil
		})
	},
}

func runFoldersList(cmd *cobra.Command, args []string) error {
	return withLibrary(cmd, func(lib *library.Library) error {
		cat, err := lib.Refresh(cmd.Context())
		if err != nil {
			return err
		}
		table := ui.NewTable("Folders", "ID", "Name", "Files", "Created")
		table.Empty = "No folders yet."
		for _, f := range cat.Folders {
			created := ""
			if t := f.Created(); !t.IsZero() {
				created = t.Local().Format("2006-01-02 15:04")
			}
			table.AddRow(f.ID, f.Name, strconv.Itoa(f.FileCount), created)
		}
		fmt.Print(table.View(styles))
		return nil
	})
}

func findFolder(cmd *cobra.Command, lib *library.Library, idOrName string) (api.Folder, error) {
	cat, err := lib.Refresh(cmd.Context())
	if err != nil {
		return api.Folder{}, err
	}
	f, ok := cat.Folder(idOrName)
	if !ok {
		return api.Folder{}, fmt.Errorf("no folder %q", idOrName)
	}
	return f, nil
}

// =============================================================================
// FILES
// =============================================================================

var (
	filesFolder     string
	filesUnassigned bool
	assumeYes       bool
)

var filesCmd = &cobra.Command{
	Use:     "files",
	Aliases: []string{"file"},
	Short:   "List, move and delete uploaded files",
	RunE:    runFilesList,
}

var filesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents, images and audio",
	RunE:  runFilesList,
}

var filesMoveCmd = &cobra.Command{
	Use:   "move <file> <folder>",
	Short: "Move a file into a folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLibrary(cmd, func(lib *library.Library) error {
			cat, err := lib.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			file, ok := cat.File(args[0])
			if !ok {
				return fmt.Errorf("no file %q", args[0])
			}
			folder, ok := cat.Folder(args[1])
			if !ok {
				return fmt.Errorf("no folder %q", args[1])
			}
			if err := lib.MoveFile(cmd.Context(), file.FileID, folder.ID); err != nil {
				return err
			}
			printSuccess("moved %s into %s", file.FileName, folder.Name)
			return nil
		})
	},
}

var filesDeleteCmd = &cobra.Command{
	Use:   "delete <file>...",
	Short: "Delete files (ids or names)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLibrary(cmd, func(lib *library.Library) error {
			cat, err := lib.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(args))
			for _, arg := range args {
				f, ok := cat.File(arg)
				if !ok {
					return fmt.Errorf("no file %q", arg)
				}
				ids = append(ids, f.FileID)
			}
			if !assumeYes && !confirm(os.Stdin, fmt.Sprintf("Delete %d files?", len(ids))) {
				printInfo("cancelled")
				return nil
			}
			n, err := lib.DeleteFiles(cmd.Context(), ids)
			if err != nil {
				return err
			}
			printSuccess("deleted %d files", n)
			return nil
		})
	},
}

var filesDeleteUnassignedCmd = &cobra.Command{
	Use:   "delete-unassigned",
	Short: "Delete every file that is not in a folder",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLibrary(cmd, func(lib *library.Library) error {
			cat, err := lib.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			n := len(cat.Unassigned())
			if n == 0 {
				printInfo("no unassigned files")
				return nil
			}
			if !assumeYes && !confirm(os.Stdin, fmt.Sprintf("Delete %d unassigned files?", n)) {
				printInfo("cancelled")
				return nil
			}
			deleted, err := lib.DeleteUnassigned(cmd.Context())
			if err != nil {
				return err
			}
			printSuccess("deleted %d files", deleted)
			return nil
		})
	},
}

func runFilesList(cmd *cobra.Command, args []string) error {
	return withLibrary(cmd, func(lib *library.Library) error {
		cat, err := lib.Refresh(cmd.Context())
		if err != nil {
			return err
		}

		files := cat.Files
		title := "Files"
		switch {
		case filesFolder != "":
			f, ok := cat.Folder(filesFolder)
			if !ok {
				return fmt.Errorf("no folder %q", filesFolder)
			}
			files = cat.InFolder(f.ID)
			title = "Files in " + f.Name
		case filesUnassigned:
			files = cat.Unassigned()
			title = "Unassigned files"
		}

		folderNames := make(map[string]string, len(cat.Folders))
		for _, f := range cat.Folders {
			folderNames[f.ID] = f.Name
		}

		table := ui.NewTable(title, "ID", "Name", "Kind", "Folder")
		table.Empty = "No files."
		for _, f := range files {
			table.AddRow(f.FileID, f.FileName, string(f.Kind), folderNames[f.FolderID])
		}
		fmt.Print(table.View(styles))

		counts := cat.Counts()
		fmt.Println(styles.Muted.Render(fmt.Sprintf("%d documents · %d images · %d audio",
			counts[api.KindDocument], counts[api.KindImage], counts[api.KindAudio])))
		return nil
	})
}

// withLibrary wires a library for one command.
func withLibrary(cmd *cobra.Command, fn func(*library.Library) error) error {
	a, err := newApp(cmd.Context(), cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a.library)
}

func init() {
	foldersCmd.AddCommand(foldersListCmd, foldersCreateCmd, foldersRenameCmd, foldersDeleteCmd)
	foldersDeleteCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")

	filesListCmd.Flags().StringVar(&filesFolder, "folder", "", "Only files in this folder (id or name)")
	filesListCmd.Flags().BoolVar(&filesUnassigned, "unassigned", false, "Only files not in a folder")
	filesListCmd.MarkFlagsMutuallyExclusive("folder", "unassigned")
	filesDeleteCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")
	filesDeleteUnassignedCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")
	filesCmd.AddCommand(filesListCmd, filesMoveCmd, filesDeleteCmd, filesDeleteUnassignedCmd)
}
