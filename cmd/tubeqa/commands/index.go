package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/tubeqa-go/internal/config"
	"github.com/54b3r/tubeqa-go/internal/embedder"
	"github.com/54b3r/tubeqa-go/internal/ingestion"
	"github.com/54b3r/tubeqa-go/internal/logging"
	"github.com/54b3r/tubeqa-go/internal/rag"
)

// NewIndexCmd constructs the `tubeqa index` command, which chunks a video
// transcript into the local store and, when a vector backend is configured,
// embeds the chunks.
func NewIndexCmd() *cobra.Command {
	var (
		title        string
		file         string
		chunkSize    int
		chunkOverlap int
		lockTimeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "index <video-url-or-id>",
		Short: "Index a video transcript for question answering",
		Long: `Parse, chunk and store a video transcript so questions can be answered from it.

The transcript may be WebVTT (as downloaded from YouTube) or plain text with
one "m:ss text" cue per line. Read from --file, or stdin when --file is "-".

When VECTOR_BACKEND (or QDRANT_HOST / PGVECTOR_DSN) is set, chunks are also
embedded with the configured embedding provider and upserted to the vector
store for RETRIEVAL_STRATEGY=embedding.

Examples:
  tubeqa index https://www.youtube.com/watch?v=dQw4w9WgXcQ --file talk.en.vtt --title "Go Concurrency"
  yt-dlp --skip-download --write-auto-subs -o - URL | tubeqa index URL --file -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			raw, err := readTranscript(cmd.InOrStdin(), file)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			rc, err := config.RetrievalFromEnv()
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			db, dbPath, err := openStore(log)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			defer db.Close()

			var (
				emb     rag.Embedder
				vectors rag.VectorStore
			)
			if rc.VectorBackend != "" {
				vectors, _, err = buildVectorStore(ctx, rc, log)
				if err != nil {
					return fmt.Errorf("index: %w", err)
				}
				defer vectors.Close()

				emb, err = embedder.NewFromEnv(ctx)
				if err != nil {
					return fmt.Errorf("index: failed to initialise embedder: %w", err)
				}
				log.Info("embedder initialised", slog.String("provider", embedder.Backend()))
			}

			pipeline, err := ingestion.NewPipeline(db, emb, vectors, &ingestion.Config{
				ChunkSize:    chunkSize,
				ChunkOverlap: chunkOverlap,
				LockPath:     dbPath + ".lock",
				LockTimeout:  lockTimeout,
			})
			if err != nil {
				return fmt.Errorf("index: failed to create pipeline: %w", err)
			}

			res, err := pipeline.Index(ctx, ingestion.Source{
				Video:      args[0],
				Title:      title,
				Transcript: raw,
			})
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "indexed %s: %d chunks (embedded: %t)\n", res.VideoID, res.Chunks, res.Embedded)
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Video title (default: the video ID)")
	cmd.Flags().StringVarP(&file, "file", "f", "", `Transcript file (WebVTT or "m:ss text"); "-" reads stdin`)
	cmd.Flags().IntVar(&chunkSize, "chunk-size", ingestion.DefaultChunkSize, "Maximum characters per chunk")
	cmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", ingestion.DefaultChunkOverlap, "Characters shared by consecutive chunks")
	cmd.Flags().DurationVar(&lockTimeout, "lock-timeout", 10*time.Second, "How long to wait for a concurrent index run")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// readTranscript reads path, or r when path is "-".
func readTranscript(r io.Reader, path string) (string, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(r)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	return string(b), nil
}
