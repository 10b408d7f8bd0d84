// Package attachment validates media files by declared type and size and
// encodes them as base64 data URIs so they can be stored inline on a message.
package attachment

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"slices"
	"strings"
	"time"
)

type Kind string

const (
	KindImage   Kind = "image"
	KindVideo   Kind = "video"
	KindPDF     Kind = "pdf"
	KindAudio   Kind = "audio"
	KindUnknown Kind = "unknown"
)

const mb = 1024 * 1024

type policy struct {
	Types   []string
	MaxSize int64
}

var policies = map[Kind]policy{
	KindImage: {Types: []string{"image/jpeg", "image/png", "image/gif", "image/webp"}, MaxSize: 5 * mb},
	KindVideo: {Types: []string{"video/mp4", "video/webm", "video/ogg"}, MaxSize: 100 * mb},
	KindPDF:   {Types: []string{"application/pdf"}, MaxSize: 10 * mb},
	KindAudio: {Types: []string{"audio/mpeg", "audio/mp3", "audio/wav", "audio/ogg"}, MaxSize: 10 * mb},
}

var (
	ErrInvalidAttachment = errors.New("invalid attachment")
	ErrUnsupportedType   = fmt.Errorf("%w: unsupported file type", ErrInvalidAttachment)
	ErrEncodeFailed      = errors.New("failed to process attachment")
)

// File is an attachment as handed over by the caller. Type and Size are the
// declared values; Content is read only when the file is encoded.
type File struct {
	Name    string
	Type    string
	Size    int64
	Content io.Reader
}

// Classify maps a declared media type onto an attachment kind.
func Classify(mediaType string) Kind {
	t := normaliseType(mediaType)
	switch {
	case strings.HasPrefix(t, "image/"):
		return KindImage
	case strings.HasPrefix(t, "video/"):
		return KindVideo
	case t == "application/pdf":
		return KindPDF
	case strings.HasPrefix(t, "audio/"):
		return KindAudio
	}
	return KindUnknown
}

// Validate classifies f and checks it against that kind's policy.
func Validate(f File) (Kind, error) {
	kind := Classify(f.Type)
	if kind == KindUnknown {
		return kind, fmt.Errorf("%w: %q", ErrUnsupportedType, f.Type)
	}
	return kind, ValidateAs(f, kind)
}

// ValidateAs checks f against the policy for kind.
func ValidateAs(f File, kind Kind) error {
	p, ok := policies[kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, f.Type)
	}
	if !slices.Contains(p.Types, normaliseType(f.Type)) {
		return fmt.Errorf("%w: %s type %q not allowed", ErrInvalidAttachment, kind, f.Type)
	}
	if f.Size < 0 || f.Size > p.MaxSize {
		return fmt.Errorf("%w: %s exceeds %d MB", ErrInvalidAttachment, kind, p.MaxSize/mb)
	}
	return nil
}

// Encoder turns validated files into data URIs.
type Encoder struct {
	// Timeout bounds a single Encode call. Zero means no bound beyond ctx.
	Timeout time.Duration
}

// Encode reads f and returns "data:<type>;base64,<payload>". At most the
// kind's size limit is read; content longer than that is rejected even when
// the declared size was smaller.
//
// When ctx ends first, Content is closed if it is an io.Closer so the pending
// read returns. A plain io.Reader cannot be interrupted; its read goroutine
// lives until that reader returns.
func (e Encoder) Encode(ctx context.Context, f File, kind Kind) (string, error) {
	p, ok := policies[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, f.Type)
	}
	if f.Content == nil {
		return "", fmt.Errorf("%w: %s has no content", ErrEncodeFailed, f.Name)
	}
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := io.ReadAll(io.LimitReader(f.Content, p.MaxSize+1))
		done <- result{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		if c, ok := f.Content.(io.Closer); ok {
			_ = c.Close()
		}
		return "", fmt.Errorf("%w: reading %s: %w", ErrEncodeFailed, f.Name, ctx.Err())
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("%w: reading %s: %w", ErrEncodeFailed, f.Name, res.err)
		}
		if int64(len(res.data)) > p.MaxSize {
			return "", fmt.Errorf("%w: %s exceeds %d MB", ErrInvalidAttachment, kind, p.MaxSize/mb)
		}
		return "data:" + normaliseType(f.Type) + ";base64," + base64.StdEncoding.EncodeToString(res.data), nil
	}
}

func normaliseType(mediaType string) string {
	t, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(mediaType))
	}
	return t
}
