package authapi

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"vidtube/cmd/internal/kind"
	"vidtube/cmd/internal/media"
)

// multipartMemory is how much of a form is held in memory before spilling to disk.
const multipartMemory = 1 << 20

var allowedImageExt = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

// stagedForm is a parsed multipart form whose files were copied into the
// upload directory. cleanup removes anything the image store did not take.
type stagedForm struct {
	values map[string]string
	files  map[string]*media.FileRef
}

func (f *stagedForm) value(name string) string { return f.values[name] }

func (f *stagedForm) file(name string) *media.FileRef { return f.files[name] }

func (f *stagedForm) cleanup() {
	for _, ref := range f.files {
		_ = os.Remove(ref.Path)
	}
}

// stageMultipart parses r as multipart/form-data and stages at most one file
// for each of fileFields.
func (h *Handler) stageMultipart(w http.ResponseWriter, r *http.Request, fileFields ...string) (*stagedForm, error) {
	const op = "authapi.stageMultipart"

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, kind.Validation(op, "upload is too large")
		}
		return nil, kind.E(op, kind.ErrValidation, "invalid multipart form", err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	form := &stagedForm{values: map[string]string{}, files: map[string]*media.FileRef{}}
	for k, vs := range r.MultipartForm.Value {
		if len(vs) > 0 {
			form.values[k] = vs[0]
		}
	}

	if err := os.MkdirAll(h.cfg.UploadDir, 0o750); err != nil {
		return nil, kind.Internal(op, fmt.Errorf("upload dir: %w", err))
	}
	for _, field := range fileFields {
		headers := r.MultipartForm.File[field]
		if len(headers) == 0 {
			continue
		}
		ref, err := h.stageFile(headers[0])
		if err != nil {
			form.cleanup()
			return nil, kind.E(op, kind.ErrValidation, field+" could not be read", err)
		}
		form.files[field] = ref
	}
	return form, nil
}

func (h *Handler) stageFile(fh *multipart.FileHeader) (*media.FileRef, error) {
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !allowedImageExt[ext] {
		return nil, fmt.Errorf("unsupported file type %q", ext)
	}

	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = src.Close() }()

	dst, err := os.CreateTemp(h.cfg.UploadDir, "upload-*"+ext)
	if err != nil {
		return nil, err
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst.Name())
		return nil, err
	}

	return &media.FileRef{
		Path:        dst.Name(),
		Filename:    filepath.Base(fh.Filename),
		ContentType: fh.Header.Get("Content-Type"),
		Size:        n,
	}, nil
}
