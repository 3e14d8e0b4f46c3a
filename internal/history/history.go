// Package history keeps recent OCR results so they can be listed and
// reopened. Stores hold at most MaxEntries entries and evict the oldest.
package history

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sort"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/MeKo-Tech/yomitori/internal/pipeline"
)

const (
	// MaxEntries is the number of entries a store retains.
	MaxEntries = 100
	// ThumbnailWidth is the maximum thumbnail width in pixels.
	ThumbnailWidth = 200
)

// ErrNotFound is returned when no entry has the requested ID.
var ErrNotFound = errors.New("history entry not found")

// Entry is one stored OCR result.
type Entry struct {
	ID               string               `json:"id"`
	FileName         string               `json:"file_name"`
	Thumbnail        string               `json:"thumbnail,omitempty"`
	TextBlocks       []pipeline.TextBlock `json:"text_blocks"`
	FullText         string               `json:"full_text"`
	ProcessingTimeMs int64                `json:"processing_time_ms"`
	CreatedAt        time.Time            `json:"created_at"`
}

// Store persists entries. List returns entries newest first.
type Store interface {
	Save(ctx context.Context, e Entry) error
	Get(ctx context.Context, id string) (Entry, error)
	List(ctx context.Context) ([]Entry, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	Close() error
}

// NewEntry builds an entry for res with a fresh ID. img may be nil, in
// which case the entry has no thumbnail.
func NewEntry(fileName string, img image.Image, res *pipeline.ImageResult) (Entry, error) {
	if res == nil {
		return Entry{}, errors.New("history: nil result")
	}
	e := Entry{
		ID:               uuid.NewString(),
		FileName:         fileName,
		TextBlocks:       res.Blocks,
		FullText:         res.FullText,
		ProcessingTimeMs: res.ProcessingTimeMs,
		CreatedAt:        time.Now().UTC(),
	}
	if img != nil {
		thumb, err := Thumbnail(img)
		if err != nil {
			return Entry{}, err
		}
		e.Thumbnail = thumb
	}
	return e, nil
}

// Thumbnail renders img as a PNG data URL no wider than ThumbnailWidth.
func Thumbnail(img image.Image) (string, error) {
	if img.Bounds().Dx() > ThumbnailWidth {
		img = imaging.Resize(img, ThumbnailWidth, 0, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// newestFirst orders entries by CreatedAt descending, breaking ties by ID
// so listings are stable.
func newestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].ID > entries[j].ID
	})
}

func validate(e Entry) error {
	if e.ID == "" {
		return errors.New("history: entry has no ID")
	}
	if e.CreatedAt.IsZero() {
		return fmt.Errorf("history: entry %s has no creation time", e.ID)
	}
	return nil
}
