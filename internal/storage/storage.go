// Package storage keeps the submitted PDFs and hands back durable URLs.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/supplier-verify/internal/model"
)

// Uploader stores one document and returns where it can be retrieved.
type Uploader interface {
	Upload(ctx context.Context, obj Object) (string, error)
}

// Object is a document to store.
type Object struct {
	SubmissionID string
	Document     model.DocumentType
	FileName     string
	ContentType  string
	Body         io.Reader
}

// filePrefixes are the short names reviewers know the documents by.
var filePrefixes = map[model.DocumentType]string{
	model.DocOpinion:       "32D",
	model.DocRegistration:  "CSF",
	model.DocBankStatement: "EDO.CTA",
}

var reUnsafe = regexp.MustCompile(`[^\w.\- ()]`)

// ObjectName builds the stored file name: prefix, timestamp and the
// sanitized original name.
func ObjectName(doc model.DocumentType, original string, at time.Time) string {
	prefix, ok := filePrefixes[doc]
	if !ok {
		prefix = string(doc)
	}
	name := reUnsafe.ReplaceAllString(filepath.Base(original), "_")
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "document.pdf"
	}
	return fmt.Sprintf("%s_%d_%s", prefix, at.UnixMilli(), name)
}

var reSubmissionID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-]{0,127}$`)

// ValidSubmissionID reports whether id is safe to use as a folder name.
func ValidSubmissionID(id string) bool {
	return reSubmissionID.MatchString(id)
}

// Local writes documents under a directory, one folder per submission.
type Local struct {
	dir string
	now func() time.Time
}

// NewLocal creates a Local uploader rooted at dir.
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "storage: resolve %s", dir)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, eris.Wrapf(err, "storage: create %s", abs)
	}
	return &Local{dir: abs, now: time.Now}, nil
}

// Upload implements Uploader. It returns a file:// URL.
func (l *Local) Upload(ctx context.Context, obj Object) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !ValidSubmissionID(obj.SubmissionID) {
		return "", eris.Errorf("storage: invalid submission id %q", obj.SubmissionID)
	}
	dir := filepath.Join(l.dir, "suppliers", obj.SubmissionID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", eris.Wrapf(err, "storage: create %s", dir)
	}
	path := filepath.Join(dir, ObjectName(obj.Document, obj.FileName, l.now()))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o640)
	if err != nil {
		return "", eris.Wrapf(err, "storage: create %s", path)
	}
	n, err := io.Copy(f, obj.Body)
	if err != nil {
		f.Close() //nolint:errcheck
		_ = os.Remove(path)
		return "", eris.Wrapf(err, "storage: write %s", path)
	}
	if err := f.Close(); err != nil {
		return "", eris.Wrapf(err, "storage: close %s", path)
	}

	zap.L().Info("storage: document stored",
		zap.String("submission_id", obj.SubmissionID),
		zap.String("document", string(obj.Document)),
		zap.Int64("bytes", n),
		zap.String("path", path))
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String(), nil
}
