package worker

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/cuongbtq/docconv/internal/content"
	"github.com/cuongbtq/docconv/internal/correction"
	"github.com/cuongbtq/docconv/internal/domain"
	"github.com/cuongbtq/docconv/internal/store"
)

// processJob drives one claimed job through
// processing -> converted -> finished. state follows every status written.
func (w *Worker) processJob(ctx context.Context, job domain.Job, state *domain.Status) error {
	start := time.Now()
	log := w.logger.With(slog.String("job_id", job.ID))

	log.Info("Processing job", slog.String("input_path", job.InputPath))

	// Step 1: Run the extraction tool next to the input file
	outputDir := filepath.Dir(job.InputPath)
	if err := w.extractor.Extract(ctx, job.InputPath, outputDir); err != nil {
		return domain.NewJobError(job.ID, domain.KindExtraction, err)
	}

	// Step 2: Locate the artifacts and record them with the converted status
	artifacts, err := w.locate(outputDir)
	if err != nil {
		return domain.NewJobError(job.ID, domain.KindExtraction, err)
	}

	converted, processing := domain.StatusConverted, domain.StatusProcessing
	err = w.store.Update(ctx, job.ID, store.Update{
		Status:              &converted,
		OutputPath:          &artifacts.Markdown,
		ContentArtifactPath: &artifacts.ContentList,
		ExpectStatus:        &processing,
	})
	if err != nil {
		return domain.NewJobError(job.ID, domain.KindStore, err)
	}
	*state = converted
	w.publish(ctx, job.ID, domain.StatusConverted, nil)

	log.Info("Extraction converted",
		slog.String("markdown", artifacts.Markdown),
		slog.String("content_list", artifacts.ContentList),
	)

	// Step 3: Correct page by page, if enabled
	blocks, err := content.Load(artifacts.ContentList)
	if err != nil {
		return domain.NewJobError(job.ID, domain.KindIO, err)
	}

	if w.corrector != nil {
		blocks, err = w.correctDocument(ctx, job, blocks)
		if err != nil {
			return domain.NewJobError(job.ID, "", err)
		}

		if err := content.Save(artifacts.ContentList, blocks); err != nil {
			return domain.NewJobError(job.ID, domain.KindIO, err)
		}
	}

	// Step 4: Reassemble the document and finish
	markdown := content.ToMarkdown(blocks)
	if err := content.WriteFile(artifacts.Markdown, []byte(markdown)); err != nil {
		return domain.NewJobError(job.ID, domain.KindIO, err)
	}

	finished := domain.StatusFinished
	err = w.store.Update(ctx, job.ID, store.Update{
		Status:       &finished,
		ExpectStatus: &converted,
	})
	if err != nil {
		return domain.NewJobError(job.ID, domain.KindStore, err)
	}
	*state = finished
	w.publish(ctx, job.ID, domain.StatusFinished, nil)

	log.Info("Job finished",
		slog.Int("blocks", len(blocks)),
		slog.Duration("duration", time.Since(start)),
	)

	return nil
}

// correctDocument renders every page of the source document and replaces
// its blocks with the corrected ones, keeping page order.
func (w *Worker) correctDocument(ctx context.Context, job domain.Job, blocks []domain.ContentBlock) ([]domain.ContentBlock, error) {
	doc, err := w.renderer.Open(job.InputPath)
	if err != nil {
		return nil, domain.NewJobError(job.ID, domain.KindIO, err)
	}
	defer doc.Close()

	pages := doc.NumPage()
	if extracted := content.PageCount(blocks); extracted > pages {
		w.logger.Warn("Content list references pages beyond the document",
			slog.String("job_id", job.ID),
			slog.Int("document_pages", pages),
			slog.Int("content_pages", extracted),
		)
	}

	corrected := make([]domain.ContentBlock, 0, len(blocks))
	for p := 0; p < pages; p++ {
		pageBlocks := content.ByPage(blocks, p)
		if len(pageBlocks) == 0 {
			continue
		}

		w.logger.Info("Correcting page",
			slog.String("job_id", job.ID),
			slog.Int("page", p+1),
			slog.Int("pages", pages),
			slog.Int("blocks", len(pageBlocks)),
		)

		image, err := doc.JPEG(p)
		if err != nil {
			return nil, domain.NewJobError(job.ID, domain.KindIO, err)
		}

		out, err := w.corrector.Correct(ctx, correction.Page{
			Index:  p,
			Blocks: pageBlocks,
			Image:  image,
		})
		if err != nil {
			return nil, domain.NewJobError(job.ID, domain.KindCorrection, fmt.Errorf("page %d: %w", p+1, err))
		}
		corrected = append(corrected, out...)
	}

	return corrected, nil
}
