package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"bookmill/book"
	"bookmill/common"
	"bookmill/config"
	"bookmill/review"
	"bookmill/state"
	"bookmill/vstore"
)

// Run is the action behind the build subcommand: load the project directory,
// run the full pipeline, report the recorded version.
func Run(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("build")

	defer func() {
		if r := recover(); r != nil {
			log.Error("Build panicked",
				zap.Any("cause", r),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("build panicked: %v", r)
		}
	}()

	dir := cmd.Args().Get(0)
	if len(dir) == 0 {
		return errors.New("no project directory has been specified")
	}
	if dir, err = filepath.Abs(dir); err != nil {
		return err
	}
	if cmd.Args().Len() > 1 {
		log.Warn("Malformed command line, too many arguments", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}

	manifest, err := book.LoadProject(dir)
	if err != nil {
		return fmt.Errorf("unable to load project: %w", err)
	}

	env.SkipReview = cmd.Bool("skip-review")
	env.Note = cmd.String("note")
	if preset := cmd.String("preset"); preset != "" {
		manifest.Book.Preset = common.ParseStylePreset(preset)
	}
	if colors := cmd.StringSlice("colors"); len(colors) > 0 {
		manifest.Book.Colors = colors
		manifest.Book.Preset = common.StylePresetCustom
	}

	store, err := openStore(ctx, env.Cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	var oracle review.Oracle
	if env.Cfg.Review.Enable && !env.SkipReview {
		oracle, err = review.NewOpenAIOracle(&env.Cfg.Review.Oracle)
		if err != nil {
			log.Warn("Review oracle unavailable, skipping review", zap.Error(err))
			oracle = nil
		}
	}

	log.Info("Build starting",
		zap.String("project", manifest.Book.ProjectID),
		zap.String("title", manifest.Book.Title),
		zap.Int("chapters", len(manifest.Chapters)))
	defer func(start time.Time) {
		log.Info("Build completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	p := New(env.Cfg, store, oracle, env.Rpt, log)
	defer p.Shutdown()

	version, err := p.Run(ctx, manifest.Book, manifest.Chapters, env.Note)
	if err != nil {
		return err
	}

	fmt.Printf("Build succeeded: %s version %d (%d bytes", version.ProjectID, version.Version, version.Bytes)
	if version.Pages != nil {
		fmt.Printf(", %d pages", *version.Pages)
	}
	fmt.Println(")")
	return nil
}

// RunReview is the action behind the review subcommand: score the project
// once and optionally apply the revision pass, writing edited chapters back.
func RunReview(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("review")

	dir := cmd.Args().Get(0)
	if len(dir) == 0 {
		return errors.New("no project directory has been specified")
	}
	if dir, err = filepath.Abs(dir); err != nil {
		return err
	}

	manifest, err := book.LoadProject(dir)
	if err != nil {
		return fmt.Errorf("unable to load project: %w", err)
	}

	oracle, err := review.NewOpenAIOracle(&env.Cfg.Review.Oracle)
	if err != nil {
		return fmt.Errorf("review requires a working oracle: %w", err)
	}
	engine := review.NewEngine(oracle, log)

	res, err := engine.Review(ctx, &manifest.Book, manifest.Chapters)
	if err != nil {
		return err
	}
	printResult("Review", res)

	if !cmd.Bool("apply") || !res.NeedsSurgery() {
		return nil
	}

	final, applied, err := engine.Revise(ctx, &manifest.Book, manifest.Chapters, res)
	if err != nil {
		return err
	}
	if applied == 0 {
		fmt.Println("No edits survived validation, chapters unchanged")
		return nil
	}
	printResult("After revision", final)

	for _, frag := range manifest.Chapters {
		if frag.SourceFile == "" {
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, frag.SourceFile), []byte(frag.Content), 0644); err != nil {
			return fmt.Errorf("unable to write back chapter %d: %w", frag.Chapter, err)
		}
	}
	log.Info("Edited chapters written back", zap.Int("edits", applied))
	return nil
}

func printResult(stage string, res *review.ReviewResult) {
	fmt.Printf("%s: score %d/10, needs revision: %v\n", stage, res.Score, res.NeedsRevision)
	if res.Summary != "" {
		fmt.Printf("  %s\n", res.Summary)
	}
	for _, topic := range res.MissingTopics {
		fmt.Printf("  missing: %s\n", topic)
	}
	for _, r := range res.Removals {
		fmt.Printf("  remove: %s\n", r)
	}
}

// RunVersions is the action behind the versions subcommand.
func RunVersions(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("versions")

	projectID := cmd.Args().Get(0)
	if len(projectID) == 0 {
		return errors.New("no project id has been specified")
	}

	store, err := openStore(ctx, env.Cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	versions, err := store.Versions(ctx, projectID)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Printf("Project %s has no recorded builds\n", projectID)
		return nil
	}
	for _, v := range versions {
		pages := "-"
		if v.Pages != nil {
			pages = fmt.Sprintf("%d", *v.Pages)
		}
		companion := ""
		if v.EpubKey != "" {
			companion = " +epub"
		}
		fmt.Printf("v%03d  %s  %8d bytes  %4s pages%s  %s\n",
			v.Version, v.CreatedAt.Format("2006-01-02 15:04"), v.Bytes, pages, companion, v.Note)
	}
	return nil
}

// openStore wires the blob backend the configuration selects and opens the
// version ledger on top of it.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (*vstore.Store, error) {
	var (
		backend vstore.Backend
		err     error
	)
	switch cfg.Storage.Backend {
	case common.BackendKindS3:
		backend, err = vstore.NewS3Backend(ctx, cfg.Storage.S3.Bucket, cfg.Storage.S3.Prefix, cfg.Storage.S3.Region)
	default:
		backend, err = vstore.NewLocalBackend(cfg.Storage.Local.Root)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to prepare storage backend: %w", err)
	}
	return vstore.Open(cfg.Storage.DatabasePath, backend, log)
}
