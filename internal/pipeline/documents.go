package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/righthand-talent/placement-cli/internal/model"
)

// DocumentLoader fetches the raw resume and transcript text for a candidate.
type DocumentLoader interface {
	Load(ctx context.Context, c *model.Candidate) (model.CandidateDocuments, error)
}

// FileDocumentLoader reads documents from a local directory. Remote sources
// (ashby, fathom) are expected to have been mirrored into this directory by
// whatever uploaded the candidate; a missing file is treated as an absent
// document, not an error, since extraction can work from either document.
type FileDocumentLoader struct {
	Dir string
}

func (l FileDocumentLoader) Load(_ context.Context, c *model.Candidate) (model.CandidateDocuments, error) {
	var docs model.CandidateDocuments
	docs.ResumeText = l.read(c.ID, "resume", c.ResumeFilename)
	docs.TranscriptText = l.read(c.ID, "transcript", c.TranscriptFilename)
	if docs.ResumeText == "" && docs.TranscriptText == "" {
		return docs, eris.Errorf("pipeline: no documents available for candidate %d", c.ID)
	}
	return docs, nil
}

func (l FileDocumentLoader) read(candidateID int64, kind, filename string) string {
	if filename == "" {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(l.Dir, filename))
	if err != nil {
		zap.L().Warn("document unavailable",
			zap.Int64("candidate_id", candidateID),
			zap.String("kind", kind),
			zap.String("filename", filename),
			zap.Error(err))
		return ""
	}
	return string(data)
}
