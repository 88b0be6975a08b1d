// Package validation enforces structural preconditions on incoming
// submissions before any network or classifier call is made.
package validation

import (
	"bytes"
	"encoding/base64"
	"image"
	"net/url"
	"strings"
	"unicode/utf16"

	"murmur/internal/models"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp" // register WebP decoder
)

const (
	// MaxContentCodeUnits bounds content length, counted in UTF-16 code units
	// so the limit matches what browser clients measure.
	MaxContentCodeUnits = 280

	// MaxAttachmentBytes bounds the decoded attachment size.
	MaxAttachmentBytes = 2 << 20 // 2 MiB
)

// Validation failures. Handlers compare with errors.Is to map each
// precondition to its message.
var (
	ErrEmptyContent         = models.NewValidationErrorWithCode(models.CodeEmptyContent, "Content cannot be empty.")
	ErrContentTooLong       = models.NewValidationErrorWithCode(models.CodeContentTooLong, "Content exceeds 280 characters.")
	ErrAttachmentTooLarge   = models.NewValidationErrorWithCode(models.CodeAttachmentTooLarge, "Attachment exceeds 2 MiB.")
	ErrAttachmentNotAnImage = models.NewValidationErrorWithCode(models.CodeAttachmentNotImage, "Attachment is not a supported image.")
)

// Submission is the caller-constructed input to the pipeline. ParentID set
// means the submission is a comment on that post.
type Submission struct {
	Content       string
	AttachmentURI string
	ParentID      *uint
}

// ValidSubmission is a Submission that passed all structural checks, with
// content trimmed.
type ValidSubmission struct {
	Content       string
	AttachmentURI string
	ParentID      *uint
}

// Validate checks a submission's structural preconditions. It is a pure
// function: no I/O, no side effects.
func Validate(sub Submission) (ValidSubmission, error) {
	content := strings.TrimSpace(sub.Content)
	if content == "" {
		return ValidSubmission{}, ErrEmptyContent
	}
	if len(utf16.Encode([]rune(content))) > MaxContentCodeUnits {
		return ValidSubmission{}, ErrContentTooLong
	}

	if sub.AttachmentURI != "" {
		if err := validateAttachment(sub.AttachmentURI); err != nil {
			return ValidSubmission{}, err
		}
	}

	return ValidSubmission{
		Content:       content,
		AttachmentURI: sub.AttachmentURI,
		ParentID:      sub.ParentID,
	}, nil
}

// validateAttachment accepts either an inline data URI (decoded and sniffed)
// or an http(s) URL reference. Remote URLs are checked syntactically only;
// fetching them here would make validation impure.
func validateAttachment(uri string) error {
	if strings.HasPrefix(uri, "data:") {
		// Reject oversized payloads before decoding: base64 expands 3 bytes
		// into 4 characters.
		if len(uri) > (MaxAttachmentBytes/3+2)*4 {
			return ErrAttachmentTooLarge
		}
		payload, err := decodeDataURI(uri)
		if err != nil {
			return ErrAttachmentNotAnImage
		}
		if len(payload) > MaxAttachmentBytes {
			return ErrAttachmentTooLarge
		}
		if _, _, err := image.DecodeConfig(bytes.NewReader(payload)); err != nil {
			return ErrAttachmentNotAnImage
		}
		return nil
	}

	parsed, err := url.ParseRequestURI(uri)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return ErrAttachmentNotAnImage
	}
	return nil
}

// decodeDataURI extracts the base64 payload from a data URI of the form
// data:<mediatype>;base64,<payload>.
func decodeDataURI(uri string) ([]byte, error) {
	meta, payload, ok := strings.Cut(uri, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, ErrAttachmentNotAnImage
	}
	return base64.StdEncoding.DecodeString(payload)
}
