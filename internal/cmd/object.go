package cmd

import (
	"fmt"
	"io"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/s3handler/internal/observability"
	"github.com/3leaps/s3handler/pkg/output"
)

var catCmd = &cobra.Command{
	Use:   "cat <uri>",
	Short: "Write an object's content to stdout",
	Args:  cobra.ExactArgs(1),
	RunE:  runCat,
}

var putCmd = &cobra.Command{
	Use:   "put <uri>",
	Short: "Write stdin (or --file) to an object",
	Long: `Write an object, replacing any existing object with the same key.

Examples:
  echo hello | s3handler put s3://bucket/greeting.txt
  s3handler put s3://bucket/report.csv --file ./report.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runPut,
}

var rmCmd = &cobra.Command{
	Use:   "rm <uri>",
	Short: "Delete an object",
	Long: `Delete one object. Deleting a key that does not exist succeeds.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runRm,
}

var statCmd = &cobra.Command{
	Use:   "stat <uri>",
	Short: "Show object metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runStat,
}

var putFile string

func init() {
	rootCmd.AddCommand(catCmd, putCmd, rmCmd, statCmd)

	putCmd.Flags().StringVarP(&putFile, "file", "f", "", "local file to upload instead of stdin")
}

func runCat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	u, err := ParseObjectURI(args[0])
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid URI", err)
	}

	c, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	body, size, err := c.OpenFile(ctx, u.Bucket, u.Key)
	if err != nil {
		return storageError("Failed to read object", err)
	}
	defer func() { _ = body.Close() }()

	n, err := io.Copy(cmd.OutOrStdout(), body)
	if err != nil {
		return storageError("Failed to read object", err)
	}
	if size >= 0 && n != size {
		return exitError(foundry.ExitFileReadError, "Truncated read",
			fmt.Errorf("read %d of %d bytes from %s", n, size, u))
	}
	return nil
}

func runPut(cmd *cobra.Command, args []string) error {
	if err := requireWritable(); err != nil {
		return err
	}
	ctx := cmd.Context()

	u, err := ParseObjectURI(args[0])
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid URI", err)
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

	var n int64
	if putFile != "" {
		n, err = c.UploadFile(ctx, u.Bucket, u.Key, putFile)
		if err != nil {
			return storageError("Failed to upload file", err)
		}
	} else {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return exitError(foundry.ExitFileReadError, "Failed to read stdin", err)
		}
		if err := c.WriteFile(ctx, u.Bucket, u.Key, data); err != nil {
			return storageError("Failed to write object", err)
		}
		n = int64(len(data))
	}

	observability.CLILogger.Debug("Object written", zap.String("uri", u.String()), zap.Int64("bytes", n))
	return w.WriteTransfer(ctx, &output.TransferRecord{Op: "put", Destination: u.String(), Bytes: n})
}

func runRm(cmd *cobra.Command, args []string) error {
	if err := requireWritable(); err != nil {
		return err
	}
	ctx := cmd.Context()

	u, err := ParseObjectURI(args[0])
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid URI", err)
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

	if err := c.DeleteFile(ctx, u.Bucket, u.Key); err != nil {
		return storageError("Failed to delete object", err)
	}
	return w.WriteTransfer(ctx, &output.TransferRecord{Op: "rm", Source: u.String()})
}

func runStat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	u, err := ParseObjectURI(args[0])
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid URI", err)
	}

	w, err := newWriter(cmd, true)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	c, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	meta, err := c.StatFile(ctx, u.Bucket, u.Key)
	if err != nil {
		return storageError("Failed to stat object", err)
	}
	return w.WriteObject(ctx, output.NewObjectRecordFromMeta(u.Bucket, meta))
}
