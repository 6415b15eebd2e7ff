package documents

import (
	"bytes"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	dErrors "qualtrack/pkg/domain-errors"
)

// Policy is the upload rule a caller checks before handing bytes to the Store.
type Policy struct {
	MaxBytes   int64
	AllowPDF   bool
	AllowImage bool
}

var (
	// CertificationPolicy accepts images and PDFs up to 10 MB.
	CertificationPolicy = Policy{MaxBytes: 10 << 20, AllowPDF: true, AllowImage: true}
	// AvatarPolicy accepts images up to 2 MB.
	AvatarPolicy = Policy{MaxBytes: 2 << 20, AllowImage: true}
)

// Upload is a validated blob ready for the Store.
type Upload struct {
	Name        string
	Body        io.Reader
	Size        int64
	ContentType string
	Extension   string
}

// Check reads at most MaxBytes+1 from r, sniffs the content type and returns an
// Upload whose Body replays the consumed bytes.
func (p Policy) Check(name string, r io.Reader) (*Upload, error) {
	data, err := io.ReadAll(io.LimitReader(r, p.MaxBytes+1))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read upload")
	}
	if len(data) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "upload is empty")
	}
	if int64(len(data)) > p.MaxBytes {
		return nil, dErrors.New(dErrors.CodeValidation, "upload exceeds size limit")
	}

	mt := mimetype.Detect(data)
	if !p.allows(mt.String()) {
		return nil, dErrors.New(dErrors.CodeValidation, "unsupported content type: "+mt.String())
	}
	return &Upload{
		Name:        name,
		Body:        bytes.NewReader(data),
		Size:        int64(len(data)),
		ContentType: mt.String(),
		Extension:   mt.Extension(),
	}, nil
}

func (p Policy) allows(contentType string) bool {
	switch {
	case p.AllowPDF && contentType == "application/pdf":
		return true
	case p.AllowImage && strings.HasPrefix(contentType, "image/"):
		return true
	default:
		return false
	}
}
