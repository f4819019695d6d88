package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/medigenius/medigenius/internal/app"
	"github.com/medigenius/medigenius/internal/config"
	"github.com/medigenius/medigenius/internal/knowledge"
	"github.com/medigenius/medigenius/internal/log"
)

var ingestTopic string

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>...",
	Short: "Index documents into the knowledge base",
	Long: `Reads text or markdown files and indexes each paragraph as a passage
in the knowledge base. Directories are walked recursively.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd.Context(), args)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTopic, "topic", "", "topic stored in passage metadata")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(ctx context.Context, paths []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{})

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	store := a.KnowledgeStore()
	if store == nil {
		return errors.New("knowledge index is unavailable, cannot ingest")
	}

	var indexed int
	for _, path := range paths {
		n, err := ingestPath(ctx, store, path)
		if err != nil {
			return err
		}
		indexed += n
	}

	logger.Info("ingestion complete", "passages", indexed)
	return nil
}

func ingestPath(ctx context.Context, store *knowledge.Store, path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}

	if !info.IsDir() {
		return ingestFile(ctx, store, path)
	}

	var total int
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !ingestable(p) {
			return nil
		}
		n, err := ingestFile(ctx, store, p)
		total += n
		return err
	})
	return total, err
}

func ingestable(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return true
	}
	return false
}

// ingestFile splits a file on blank lines and indexes each block as one
// passage. Paragraph-sized passages keep embeddings focused on a single
// point, which matters for the cosine-similarity sufficiency test.
func ingestFile(ctx context.Context, store *knowledge.Store, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}

	var indexed int
	for _, passage := range splitPassages(string(data)) {
		metadata := map[string]string{"source": filepath.Base(path)}
		if ingestTopic != "" {
			metadata["topic"] = ingestTopic
		}

		doc := knowledge.Document{
			ID:       uuid.New(),
			Content:  passage,
			Metadata: metadata,
		}
		if err := store.Add(ctx, doc); err != nil {
			return indexed, fmt.Errorf("indexing passage from %s: %w", path, err)
		}
		indexed++
	}
	return indexed, nil
}

// splitPassages splits text on blank lines, dropping empty blocks.
func splitPassages(text string) []string {
	var passages []string
	for _, block := range strings.Split(text, "\n\n") {
		if p := strings.TrimSpace(block); p != "" {
			passages = append(passages, p)
		}
	}
	return passages
}
