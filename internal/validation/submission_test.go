package validation

import (
	"encoding/base64"
	"strings"
	"testing"

	"murmur/internal/models"
	"murmur/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_TrimsContent(t *testing.T) {
	valid, err := Validate(Submission{Content: "  hello world  "})
	require.NoError(t, err)
	assert.Equal(t, "hello world", valid.Content)
}

func TestValidate_EmptyContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty string", ""},
		{"only spaces", "   "},
		{"only whitespace", " \t\n "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(Submission{Content: tt.content})
			assert.ErrorIs(t, err, ErrEmptyContent)
		})
	}
}

func TestValidate_ContentLengthBoundary(t *testing.T) {
	_, err := Validate(Submission{Content: strings.Repeat("a", MaxContentCodeUnits)})
	assert.NoError(t, err)

	_, err = Validate(Submission{Content: strings.Repeat("a", MaxContentCodeUnits+1)})
	assert.ErrorIs(t, err, ErrContentTooLong)
}

func TestValidate_ContentLengthCountsUTF16Units(t *testing.T) {
	// An astral-plane rune occupies two UTF-16 code units, matching what
	// browser clients measure with String.length.
	emoji := "\U0001F600"

	_, err := Validate(Submission{Content: strings.Repeat(emoji, MaxContentCodeUnits/2)})
	assert.NoError(t, err)

	_, err = Validate(Submission{Content: strings.Repeat(emoji, MaxContentCodeUnits/2+1)})
	assert.ErrorIs(t, err, ErrContentTooLong)
}

func TestValidate_AttachmentDataURI(t *testing.T) {
	valid, err := Validate(Submission{
		Content:       "look at this",
		AttachmentURI: testutil.PNGDataURI(t, 4, 4),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, valid.AttachmentURI)
}

func TestValidate_AttachmentTooLarge(t *testing.T) {
	// The base64 text alone exceeds the decoded-size ceiling, so the
	// pre-decode guard rejects it without allocating the payload.
	uri := "data:image/png;base64," + strings.Repeat("A", (MaxAttachmentBytes/3+3)*4)
	_, err := Validate(Submission{Content: "big", AttachmentURI: uri})
	assert.ErrorIs(t, err, ErrAttachmentTooLarge)
}

func TestValidate_AttachmentNotAnImage(t *testing.T) {
	notImage := "data:text/plain;base64," +
		base64.StdEncoding.EncodeToString([]byte("definitely not pixels"))

	tests := []struct {
		name string
		uri  string
	}{
		{"plain text payload", notImage},
		{"data URI without base64 marker", "data:image/png,rawbytes"},
		{"invalid base64", "data:image/png;base64,!!!not-base64!!!"},
		{"unsupported scheme", "ftp://example.com/cat.png"},
		{"not a URL at all", "::::"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(Submission{Content: "pic", AttachmentURI: tt.uri})
			assert.ErrorIs(t, err, ErrAttachmentNotAnImage)
		})
	}
}

func TestValidate_AttachmentRemoteURL(t *testing.T) {
	for _, uri := range []string{
		"http://example.com/cat.png",
		"https://example.com/cat.jpg",
	} {
		_, err := Validate(Submission{Content: "pic", AttachmentURI: uri})
		assert.NoError(t, err, uri)
	}
}

func TestValidate_ErrorsCarryCodes(t *testing.T) {
	_, err := Validate(Submission{Content: ""})

	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeEmptyContent, appErr.Code)
}
