package cmd

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/s3handler/internal/observability"
	"github.com/3leaps/s3handler/pkg/output"
)

var cpCmd = &cobra.Command{
	Use:   "cp <src-uri> <dst-uri>",
	Short: "Copy an object",
	Long: `Copy one object. The copy happens server side when source and
destination share a backend. A destination ending in "/" receives the
source's base name.

Examples:
  s3handler cp s3://bucket/a.txt s3://bucket/b.txt
  s3handler cp s3://src/data/a.txt s3://dst/archive/`,
	Args: cobra.ExactArgs(2),
	RunE: runCp,
}

var downloadCmd = &cobra.Command{
	Use:   "download <uri> <path>",
	Short: "Download an object to a local file",
	Long: `Download one object. The file is written to a temporary name and
renamed into place, so an interrupted download leaves no partial file.
When <path> is a directory the object's base name is used.`,
	Args: cobra.ExactArgs(2),
	RunE: runDownload,
}

var uploadCmd = &cobra.Command{
	Use:   "upload <path> <uri>",
	Short: "Upload a local file to an object",
	Long: `Upload one local file. A destination ending in "/" receives the
file's base name.`,
	Args: cobra.ExactArgs(2),
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(cpCmd, downloadCmd, uploadCmd)
}

func runCp(cmd *cobra.Command, args []string) error {
	if err := requireWritable(); err != nil {
		return err
	}
	ctx := cmd.Context()

	src, err := ParseObjectURI(args[0])
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid source URI", err)
	}
	dst, err := ParseURI(args[1])
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid destination URI", err)
	}
	if dst.IsPattern() {
		return exitError(foundry.ExitInvalidArgument, "Invalid destination URI", ErrNotAnObject)
	}
	if dst.IsPrefix() {
		dst.Key += src.BaseName()
	}

	w, err := newWriter(cmd, false)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	c, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	if err := c.CopyFile(ctx, src.Bucket, src.Key, dst.Bucket, dst.Key); err != nil {
		observability.CLILogger.Error("Copy failed",
			zap.String("source", src.String()),
			zap.String("destination", dst.String()),
			zap.Error(err))
		return storageError("Copy failed", err)
	}

	var size int64
	if meta, err := c.StatFile(ctx, dst.Bucket, dst.Key); err == nil {
		size = meta.Size
	}
	return w.WriteTransfer(ctx, &output.TransferRecord{Op: "cp", Source: src.String(), Destination: dst.String(), Bytes: size})
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	src, err := ParseObjectURI(args[0])
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid URI", err)
	}

	local := args[1]
	if info, err := os.Stat(local); err == nil && info.IsDir() {
		local = filepath.Join(local, src.BaseName())
	} else if strings.HasSuffix(local, string(os.PathSeparator)) {
		return exitError(foundry.ExitFileNotFound, "Destination directory does not exist", os.ErrNotExist)
	}

	w, err := newWriter(cmd, false)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	c, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	n, err := c.DownloadFile(ctx, src.Bucket, src.Key, local)
	if err != nil {
		return storageError("Download failed", err)
	}
	return w.WriteTransfer(ctx, &output.TransferRecord{Op: "download", Source: src.String(), Destination: local, Bytes: n})
}

func runUpload(cmd *cobra.Command, args []string) error {
	if err := requireWritable(); err != nil {
		return err
	}
	ctx := cmd.Context()

	local := args[0]
	info, err := os.Stat(local)
	if err != nil {
		return exitError(foundry.ExitFileNotFound, "Cannot read local file", err)
	}
	if info.IsDir() {
		return exitError(foundry.ExitInvalidArgument, "Cannot upload a directory", os.ErrInvalid)
	}

	dst, err := ParseURI(args[1])
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid URI", err)
	}
	if dst.IsPattern() {
		return exitError(foundry.ExitInvalidArgument, "Invalid URI", ErrNotAnObject)
	}
	if dst.IsPrefix() {
		dst.Key += filepath.Base(local)
	}

	w, err := newWriter(cmd, false)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	c, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	n, err := c.UploadFile(ctx, dst.Bucket, dst.Key, local)
	if err != nil {
		return storageError("Upload failed", err)
	}
	return w.WriteTransfer(ctx, &output.TransferRecord{Op: "upload", Source: local, Destination: dst.String(), Bytes: n})
}
