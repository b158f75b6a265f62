package main

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-asset/pkg/simpleasset"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the catalog tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.Migrate(getContext(cmd)); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "catalog schema is up to date")
		return nil
	},
}

var (
	uploadOwner     int64
	uploadKind      string
	uploadPublic    bool
	uploadTaken     string
	uploadDuration  int
	uploadPrefix    string
	uploadMediaType string
)

var uploadCmd = &cobra.Command{
	Use:   "upload FILE...",
	Short: "Upload files and catalog them for an owner",
	Long: `Upload one or more local files. A single file goes through the regular create
path; several files are uploaded concurrently and cataloged in one unit of work.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().Int64Var(&uploadOwner, "owner", 0, "owner id (required)")
	uploadCmd.Flags().StringVar(&uploadKind, "kind", string(simpleasset.AssetKindPhoto), "photo or video")
	uploadCmd.Flags().BoolVar(&uploadPublic, "public", false, "make the asset visible to readers")
	uploadCmd.Flags().StringVar(&uploadTaken, "date-taken", "", "RFC3339 capture time (default: file modification time)")
	uploadCmd.Flags().IntVar(&uploadDuration, "duration", 0, "duration in seconds, required for videos")
	uploadCmd.Flags().StringVar(&uploadPrefix, "prefix", "", "sub-path under user/{owner} to store the files in")
	uploadCmd.Flags().StringVar(&uploadMediaType, "content-type", "", "content type (default: from extension)")
	_ = uploadCmd.MarkFlagRequired("owner")
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := getContext(cmd)

	reqs := make([]simpleasset.CreateAssetRequest, len(args))
	for i, path := range args {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return err
		}

		taken := info.ModTime()
		if uploadTaken != "" {
			if taken, err = time.Parse(time.RFC3339, uploadTaken); err != nil {
				return fmt.Errorf("invalid --date-taken: %w", err)
			}
		}

		contentType := uploadMediaType
		if contentType == "" {
			contentType = mime.TypeByExtension(filepath.Ext(path))
		}
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		reqs[i] = simpleasset.CreateAssetRequest{
			Kind:            simpleasset.AssetKind(uploadKind),
			Filename:        filepath.Base(path),
			ContentType:     contentType,
			Size:            info.Size(),
			DurationSeconds: uploadDuration,
			DateTaken:       taken,
			IsPublic:        uploadPublic,
			PathPrefix:      uploadPrefix,
			Body:            f,
		}
	}

	if len(reqs) == 1 {
		var view *simpleasset.AssetView
		err := simpleasset.WithUnitOfWork(ctx, app.Catalog, func(uow simpleasset.UnitOfWork) error {
			var err error
			view, err = app.Service.CreateAsset(ctx, uow, reqs[0], uploadOwner)
			return err
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, view)
	}

	var results []simpleasset.CreateResult
	err := simpleasset.WithUnitOfWork(ctx, app.Catalog, func(uow simpleasset.UnitOfWork) error {
		var err error
		results, err = app.Service.CreateAssets(ctx, uow, reqs, uploadOwner)
		return err
	})
	if err != nil {
		return err
	}

	failed := 0
	for i, result := range results {
		if result.Err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", args[i], result.Err)
			continue
		}
		if err := printJSON(cmd, result.Asset); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(results))
	}
	return nil
}

var presignExpires time.Duration

var presignCmd = &cobra.Command{
	Use:   "presign ID",
	Short: "Print a presigned download URL for a visible asset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := getContext(cmd)
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid asset id %q", args[0])
		}

		var url string
		err = simpleasset.WithUnitOfWork(ctx, app.Catalog, func(uow simpleasset.UnitOfWork) error {
			var err error
			url, err = app.Service.GetAssetURL(ctx, uow, id, presignExpires)
			return err
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), url)
		return nil
	},
}

func init() {
	presignCmd.Flags().DurationVar(&presignExpires, "expires", 0, "URL validity (default: PRESIGN_EXPIRATION_SECONDS)")
}

var (
	listSkip  int
	listLimit int
	listURLs  bool
)

var listCmd = &cobra.Command{
	Use:   "list OWNER",
	Short: "List an owner's assets that are not soft deleted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := getContext(cmd)
		ownerID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid owner id %q", args[0])
		}

		var page *simpleasset.Page
		err = simpleasset.WithUnitOfWork(ctx, app.Catalog, func(uow simpleasset.UnitOfWork) error {
			var err error
			page, err = app.Service.ListOwnerAssets(ctx, uow, ownerID, listSkip, listLimit, listURLs)
			return err
		})
		if errors.Is(err, simpleasset.ErrAssetNotFound) {
			fmt.Fprintf(cmd.OutOrStdout(), "owner %d has no assets in this range\n", ownerID)
			return nil
		}
		if err != nil {
			return err
		}
		return printJSON(cmd, page)
	},
}

func init() {
	listCmd.Flags().IntVar(&listSkip, "skip", 0, "number of assets to skip")
	listCmd.Flags().IntVar(&listLimit, "limit", simpleasset.DefaultPageLimit, "page size")
	listCmd.Flags().BoolVar(&listURLs, "urls", false, "include presigned URLs")
}

var (
	deleteOwner   int64
	deleteHard    bool
	deleteRestore bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Soft delete, restore or hard delete an owned asset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := getContext(cmd)
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid asset id %q", args[0])
		}
		if deleteHard && deleteRestore {
			return errors.New("--hard and --restore are mutually exclusive")
		}

		err = simpleasset.WithUnitOfWork(ctx, app.Catalog, func(uow simpleasset.UnitOfWork) error {
			if deleteHard {
				return app.Service.HardDelete(ctx, uow, id, deleteOwner)
			}
			return app.Service.ToggleSoftDelete(ctx, uow, id, !deleteRestore, deleteOwner)
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "asset %d updated\n", id)
		return nil
	},
}

func init() {
	deleteCmd.Flags().Int64Var(&deleteOwner, "owner", 0, "owner id (required)")
	deleteCmd.Flags().BoolVar(&deleteHard, "hard", false, "remove the catalog rows instead of flagging them")
	deleteCmd.Flags().BoolVar(&deleteRestore, "restore", false, "clear the soft delete flag")
	_ = deleteCmd.MarkFlagRequired("owner")
}
