package cmd

import (
	"fmt"
	"iter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/s3handler/internal/observability"
	"github.com/3leaps/s3handler/pkg/match"
	"github.com/3leaps/s3handler/pkg/output"
	"github.com/3leaps/s3handler/pkg/provider"
)

var bucketsCmd = &cobra.Command{
	Use:   "buckets",
	Short: "List buckets",
	Args:  cobra.NoArgs,
	RunE:  runBuckets,
}

var keysCmd = &cobra.Command{
	Use:   "keys <uri>",
	Short: "List every key under a prefix, recursively",
	Long: `List every object key under a prefix, recursively, in lexicographic order.

A glob in the URI filters keys; the listing starts at the static prefix
before the first glob character.

Examples:
  s3handler keys s3://bucket/data/
  s3handler keys s3://bucket/data/ --long
  s3handler keys 's3://bucket/data/**/*.csv' --exclude '**/_tmp/**'
  s3handler keys s3://bucket/logs/ --start-after logs/2024-06-01.log`,
	Args: cobra.ExactArgs(1),
	RunE: runKeys,
}

var dirsCmd = &cobra.Command{
	Use:   "dirs <uri>",
	Short: "List directories (common prefixes) below a prefix",
	Long: `List the directories one level below a prefix. With --depth N the
listing recurses depth first, N levels deep; --depth 0 walks the whole tree.

Examples:
  s3handler dirs s3://bucket/
  s3handler dirs s3://bucket/data/ --depth 3`,
	Args: cobra.ExactArgs(1),
	RunE: runDirs,
}

var (
	keysLong       bool
	keysIncludes   []string
	keysExcludes   []string
	keysNoHidden   bool
	keysStartAfter string
	keysSummary    bool

	dirsDepth int
)

func init() {
	rootCmd.AddCommand(bucketsCmd, keysCmd, dirsCmd)

	keysCmd.Flags().BoolVarP(&keysLong, "long", "l", false, "show size and modification time")
	keysCmd.Flags().StringArrayVar(&keysIncludes, "include", nil, "only keys matching this glob (repeatable)")
	keysCmd.Flags().StringArrayVar(&keysExcludes, "exclude", nil, "skip keys matching this glob (repeatable)")
	keysCmd.Flags().BoolVar(&keysNoHidden, "no-hidden", false, "skip keys with a path segment starting with '.'")
	keysCmd.Flags().StringVar(&keysStartAfter, "start-after", "", "resume the listing after this key")
	keysCmd.Flags().BoolVar(&keysSummary, "summary", false, "emit a summary record at the end")

	dirsCmd.Flags().IntVarP(&dirsDepth, "depth", "d", 1, "levels to descend (0 = unbounded)")
}

func runBuckets(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	c, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	w, err := newWriter(cmd, false)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	buckets, err := c.ListBuckets(ctx)
	if err != nil {
		observability.CLILogger.Error("Failed to list buckets", zap.Error(err))
		return storageError("Failed to list buckets", err)
	}
	for _, b := range buckets {
		if err := w.WriteBucket(ctx, &output.BucketRecord{Name: b}); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
		}
	}
	return nil
}

func runKeys(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()

	parsed, err := ParseURI(args[0])
	if err != nil {
		observability.CLILogger.Error("Invalid URI", zap.String("uri", args[0]), zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid URI", err)
	}

	includes := append([]string(nil), keysIncludes...)
	if parsed.IsPattern() {
		includes = append(includes, parsed.Pattern)
	}
	var m *match.Matcher
	if len(includes) > 0 || len(keysExcludes) > 0 || keysNoHidden {
		m, err = match.New(match.Config{Includes: includes, Excludes: keysExcludes, ExcludeHidden: keysNoHidden})
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid include/exclude patterns", err)
		}
	}

	w, err := newWriter(cmd, keysLong)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	c, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	detailed := keysLong || flagOutput == "jsonl" || flagOutput == "json"

	var seq iter.Seq2[provider.ObjectSummary, error]
	switch {
	case keysStartAfter != "":
		seq = filtered(summaries(c.KeysAfter(ctx, parsed.Bucket, parsed.Key, keysStartAfter)), m)
	case m != nil:
		seq = c.IterateMatching(ctx, parsed.Bucket, parsed.Key, m)
	case detailed:
		seq = c.IterateObjects(ctx, parsed.Bucket, parsed.Key)
	default:
		seq = summaries(c.IterateKeys(ctx, parsed.Bucket, parsed.Key))
	}

	sum := &output.SummaryRecord{}
	var listErr error
	for obj, err := range seq {
		if err != nil {
			listErr = err
			break
		}
		sum.Entries++
		sum.Bytes += obj.Size
		if err := w.WriteObject(ctx, output.NewObjectRecord(parsed.Bucket, obj)); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
		}
	}

	if listErr != nil {
		sum.Errors++
		rec := output.NewErrorRecord(listErr)
		rec.Bucket = parsed.Bucket
		rec.Prefix = parsed.Key
		_ = w.WriteError(ctx, rec)
	}
	if keysSummary {
		sum.Duration = time.Since(start)
		sum.DurationHuman = sum.Duration.Round(time.Millisecond).String()
		_ = w.WriteSummary(ctx, sum)
	}
	if listErr != nil {
		observability.CLILogger.Error("Listing failed",
			zap.String("uri", parsed.String()),
			zap.Int64("entries", sum.Entries),
			zap.Error(listErr))
		return storageError("Listing failed", listErr)
	}
	observability.CLILogger.Debug("Listing completed",
		zap.String("uri", parsed.String()),
		zap.Int64("entries", sum.Entries))
	return nil
}

func runDirs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	parsed, err := ParseURI(args[0])
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid URI", err)
	}
	if parsed.IsPattern() {
		return exitError(foundry.ExitInvalidArgument, "dirs requires a prefix URI", fmt.Errorf("patterns are not supported: %s", args[0]))
	}
	if dirsDepth < 0 {
		return exitError(foundry.ExitInvalidArgument, "Invalid --depth value", fmt.Errorf("depth must be >= 0"))
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

	prefix := parsed.Key
	if prefix != "" && !parsed.IsPrefix() {
		prefix += c.Delimiter()
	}

	seq := c.IterateDirs(ctx, parsed.Bucket, prefix)
	if dirsDepth != 1 {
		seq = c.WalkDirs(ctx, parsed.Bucket, prefix, dirsDepth)
	}

	for dir, err := range seq {
		if err != nil {
			rec := output.NewErrorRecord(err)
			rec.Bucket = parsed.Bucket
			rec.Prefix = prefix
			_ = w.WriteError(ctx, rec)
			return storageError("Listing failed", err)
		}
		if err := w.WritePrefix(ctx, &output.PrefixRecord{Bucket: parsed.Bucket, Prefix: dir}); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
		}
	}
	return nil
}

// summaries adapts a key sequence to summaries carrying only the key.
func summaries(keys iter.Seq2[string, error]) iter.Seq2[provider.ObjectSummary, error] {
	return func(yield func(provider.ObjectSummary, error) bool) {
		for key, err := range keys {
			if !yield(provider.ObjectSummary{Key: key}, err) {
				return
			}
		}
	}
}

// filtered drops summaries m rejects. A nil m passes everything.
func filtered(seq iter.Seq2[provider.ObjectSummary, error], m *match.Matcher) iter.Seq2[provider.ObjectSummary, error] {
	if m == nil {
		return seq
	}
	return func(yield func(provider.ObjectSummary, error) bool) {
		for obj, err := range seq {
			if err == nil && !m.Match(obj.Key) {
				continue
			}
			if !yield(obj, err) {
				return
			}
		}
	}
}
