package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"pcat-go/internal/app"
	"pcat-go/internal/config"
	"pcat-go/internal/encryption"
	"pcat-go/internal/model"
	"pcat-go/internal/pcat"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a PCatApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "AddFolder", "Import").
func newApp(operation string, args ...string) (*app.PCatApp, error) {
	cfg, _, err := readConfig()
	if err != nil {
		return nil, err
	}

	op := app.NewOperation(operation, strings.Join(args, " "), pcat.RealClock{}.Now())
	a, err := app.NewPCatApp(cfg, op, promptPassphrase)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func readConfig() (*config.Config, string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults["config_path"], nil
}

var rootCmd = &cobra.Command{
	Use:          "pcat",
	Short:        "Photo catalog",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Data Root: %s\n", cfg.DataRoot)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := readConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Data Root:       %s\n", cfg.DataRoot)
		fmt.Printf("Log Dir:         %s\n", cfg.LogDir)
		fmt.Printf("Format Version:  %s\n", cfg.Catalog.FormatVersion)
		fmt.Printf("Batch Size:      %d\n", cfg.Catalog.BatchSize)
		fmt.Printf("Cache Capacity:  %d folder(s)\n", cfg.Catalog.ThumbnailCacheCapacity)
		fmt.Printf("Generations:     %d\n", cfg.Backup.Generations)
		fmt.Printf("Encrypt Backups: %v\n", cfg.Backup.Encrypt)
		for i, v := range cfg.Vaults {
			fmt.Printf("Vault %d:         %s (%s)\n", i, v.Name, v.Type)
		}
		return nil
	},
}

// encryption command
var encryptionCmd = &cobra.Command{
	Use:   "encryption",
	Short: "Manage backup encryption",
}

var encryptionInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the backup key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := readConfig()
		if err != nil {
			return err
		}
		enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
		if err != nil {
			return err
		}
		if enc.IsConfigured() {
			return fmt.Errorf("encryption keys already exist")
		}

		pass, err := readNewPassphrase()
		if err != nil {
			return err
		}
		if err := enc.Setup(pass); err != nil {
			return fmt.Errorf("setting up encryption: %w", err)
		}
		fmt.Printf("Public key:  %s\n", cfg.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s\n", cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

// folder command
var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Manage catalogued folders",
}

var folderAddCmd = &cobra.Command{
	Use:   "add [PATH]",
	Short: "Register a folder",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := argOr(args, ".")
		a, err := newApp("AddFolder", target)
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := a.AddFolder(target)
		if err != nil {
			return err
		}
		fmt.Printf("Folder %s: %s\n", f.ID, f.Path)
		return nil
	},
}

var folderListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalogued folders",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ListFolders")
		if err != nil {
			return err
		}
		defer a.Close()

		folders := a.Folders()
		if len(folders) == 0 {
			fmt.Println("No folders catalogued.")
			return nil
		}
		for _, f := range folders {
			assets, err := a.Assets(f.Path)
			if err != nil {
				return err
			}
			fmt.Printf("%s  %5d  %s\n", f.ID, len(assets), f.Path)
		}
		return nil
	},
}

var folderDeleteCmd = &cobra.Command{
	Use:   "delete PATH",
	Short: "Remove a folder and its assets from the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("DeleteFolder", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		ok, err := a.DeleteFolder(args[0])
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Folder not catalogued.")
			return nil
		}
		fmt.Printf("Deleted folder %s\n", args[0])
		return nil
	},
}

// asset command
var assetCmd = &cobra.Command{
	Use:   "asset",
	Short: "Inspect catalogued assets",
}

var assetListCmd = &cobra.Command{
	Use:   "list [FOLDER]",
	Short: "List assets, optionally of one folder",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ListAssets", args...)
		if err != nil {
			return err
		}
		defer a.Close()

		assets, err := a.Assets(argOr(args, ""))
		if err != nil {
			return err
		}
		if len(assets) == 0 {
			fmt.Println("No assets found.")
			return nil
		}
		for _, as := range assets {
			printAsset(as)
		}
		return nil
	},
}

var assetDeleteCmd = &cobra.Command{
	Use:   "delete FILE",
	Short: "Remove an asset from the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("DeleteAsset", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		ok, err := a.DeleteAsset(args[0])
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Asset not catalogued.")
			return nil
		}
		fmt.Printf("Deleted asset %s\n", args[0])
		return nil
	},
}

// import command
var importCmd = &cobra.Command{
	Use:   "import [PATH]",
	Short: "Catalog the images of a folder",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recursive, _ := cmd.Flags().GetBool("recursive")
		target := argOr(args, ".")

		a, err := newApp("Import", target)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		r, err := a.Import(ctx, target, recursive)
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		fmt.Printf("%d folder(s): %d added, %d updated, %d unchanged, %d removed, %d unreadable\n",
			r.Folders, r.Added, r.Updated, r.Skipped, r.Removed, r.Corrupt)
		return nil
	},
}

// thumbs command
var thumbsCmd = &cobra.Command{
	Use:   "thumbs",
	Short: "Inspect stored thumbnails",
}

var thumbsCheckCmd = &cobra.Command{
	Use:   "check [FOLDER]",
	Short: "List assets without a stored thumbnail",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("CheckThumbnails", args...)
		if err != nil {
			return err
		}
		defer a.Close()

		missing, err := a.MissingThumbnails(argOr(args, ""))
		if err != nil {
			return err
		}
		if len(missing) == 0 {
			fmt.Println("All thumbnails present.")
			return nil
		}
		for _, as := range missing {
			fmt.Println(as.FullPath())
		}
		return nil
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Manage sync definitions",
}

var syncShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show sync definitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ShowSync")
		if err != nil {
			return err
		}
		defer a.Close()

		defs := a.SyncConfiguration().Definitions
		if len(defs) == 0 {
			fmt.Println("No sync definitions.")
			return nil
		}
		for i, d := range defs {
			fmt.Printf("%d  %s -> %s  subfolders:%v  delete:%v\n",
				i, d.SourceDirectory, d.DestinationDirectory, d.IncludeSubFolders, d.DeleteAssetsNotInSource)
		}
		return nil
	},
}

var syncAddCmd = &cobra.Command{
	Use:   "add SOURCE DESTINATION",
	Short: "Add a sync definition",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sub, _ := cmd.Flags().GetBool("recursive")
		del, _ := cmd.Flags().GetBool("delete")

		a, err := newApp("AddSync", args...)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.AddSyncDefinition(model.SyncAssetsDirectoriesDefinition{
			SourceDirectory:         args[0],
			DestinationDirectory:    args[1],
			IncludeSubFolders:       sub,
			DeleteAssetsNotInSource: del,
		})
	},
}

var syncClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every sync definition",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ClearSync")
		if err != nil {
			return err
		}
		defer a.Close()
		return a.ClearSyncDefinitions()
	},
}

// recent command
var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Manage recent target paths",
}

var recentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent target paths",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ListRecent")
		if err != nil {
			return err
		}
		defer a.Close()

		for _, p := range a.RecentTargetPaths() {
			fmt.Println(p)
		}
		return nil
	},
}

var recentAddCmd = &cobra.Command{
	Use:   "add PATH",
	Short: "Record a recent target path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("AddRecent", args[0])
		if err != nil {
			return err
		}
		defer a.Close()
		return a.AddRecentTargetPath(args[0])
	},
}

// duplicates command
var duplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "List assets sharing the same content",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("FindDuplicates")
		if err != nil {
			return err
		}
		defer a.Close()

		groups := a.Duplicates()
		if len(groups) == 0 {
			fmt.Println("No duplicates found.")
			return nil
		}
		for _, g := range groups {
			fmt.Printf("%s  (%d copies)\n", shortHash(g[0].Hash), len(g))
			for _, as := range g {
				fmt.Printf("    %s\n", as.FullPath())
			}
		}
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage catalog backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Snapshot the catalog now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("CreateBackup")
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.CreateBackup()
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
		fmt.Printf("Created backup %s\n", id)
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "View backup history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("ListBackups")
		if err != nil {
			return err
		}
		defer a.Close()

		recs, err := a.Backups(limit)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Println("No backups recorded.")
			return nil
		}
		for _, r := range recs {
			lock := ""
			if r.Encrypted {
				lock = "  [encrypted]"
			}
			fmt.Printf("%s  %-14s  %4d file(s)  %8s  %s%s\n",
				r.ID,
				humanize.Time(r.CreatedAt),
				r.Files,
				humanize.Bytes(uint64(r.Size)),
				r.Reason,
				lock,
			)
		}
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore ID",
	Short: "Replace the catalog with a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("RestoreBackup", args[0])
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.RestoreBackup(args[0]); err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}
		fmt.Printf("Restored backup %s\n", args[0])
		return nil
	},
}

// flush command
var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Write pending catalog changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Flush")
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Flush()
	},
}

func argOr(args []string, def string) string {
	if len(args) > 0 {
		return args[0]
	}
	return def
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func printAsset(a *model.Asset) {
	flag := ""
	if a.Metadata.Corrupted.IsTrue {
		flag = "  [corrupt]"
	}
	fmt.Printf("%-40s  %5dx%-5d  %8s  %s%s\n",
		a.FullPath(),
		a.Pixel.Asset.Width, a.Pixel.Asset.Height,
		humanize.Bytes(uint64(a.FileSize)),
		a.FileModificationDateTime.Format("2006-01-02 15:04:05"),
		flag,
	)
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	encryptionCmd.AddCommand(encryptionInitCmd)

	folderCmd.AddCommand(folderAddCmd)
	folderCmd.AddCommand(folderListCmd)
	folderCmd.AddCommand(folderDeleteCmd)

	assetCmd.AddCommand(assetListCmd)
	assetCmd.AddCommand(assetDeleteCmd)

	thumbsCmd.AddCommand(thumbsCheckCmd)

	syncCmd.AddCommand(syncShowCmd)
	syncCmd.AddCommand(syncAddCmd)
	syncCmd.AddCommand(syncClearCmd)
	syncAddCmd.Flags().BoolP("recursive", "r", false, "Include subfolders")
	syncAddCmd.Flags().Bool("delete", false, "Delete destination assets missing from the source")

	recentCmd.AddCommand(recentListCmd)
	recentCmd.AddCommand(recentAddCmd)

	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupListCmd.Flags().IntP("limit", "n", 20, "Maximum number of backups to show")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(encryptionCmd)
	rootCmd.AddCommand(folderCmd)
	rootCmd.AddCommand(assetCmd)
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().BoolP("recursive", "r", false, "Recurse into subdirectories")
	rootCmd.AddCommand(thumbsCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(recentCmd)
	rootCmd.AddCommand(duplicatesCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(flushCmd)
}
