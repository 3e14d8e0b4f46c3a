// Package pdf pulls page images out of PDF documents and runs them through
// the OCR pipeline page by page.
package pdf

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/MeKo-Tech/yomitori/internal/utils"
)

// PageImage is one embedded image and the page it came from.
type PageImage struct {
	Page  int
	Index int // 1-based position among the page's images
	Image image.Image
}

// newConfiguration returns a pdfcpu configuration carrying password for
// both the user and owner slots.
func newConfiguration(password string) *model.Configuration {
	conf := model.NewDefaultConfiguration()
	if password != "" {
		conf.UserPW = password
		conf.OwnerPW = password
	}
	return conf
}

// PageCount returns the number of pages in filename.
func PageCount(filename, password string) (int, error) {
	if password == "" {
		n, err := api.PageCountFile(filename)
		if err != nil {
			return 0, wrapPDFError("count pages", err)
		}
		return n, nil
	}
	f, err := os.Open(filename) //nolint:gosec // G304: reading a user-provided PDF is expected
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()
	n, err := api.PageCount(f, newConfiguration(password))
	if err != nil {
		return 0, wrapPDFError("count pages", err)
	}
	return n, nil
}

// ExtractImages extracts the embedded images of the pages in pageRange
// ("" for all, or e.g. "1-3,5"), ordered by page then position.
func ExtractImages(filename, pageRange, password string) ([]PageImage, error) {
	pageNumbers, err := parsePageRange(pageRange)
	if err != nil {
		return nil, fmt.Errorf("invalid page range %q: %w", pageRange, err)
	}

	tempDir, err := os.MkdirTemp("", "yomitori-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	var selected []string
	for _, n := range pageNumbers {
		selected = append(selected, strconv.Itoa(n))
	}

	if err := api.ExtractImagesFile(filename, tempDir, selected, newConfiguration(password)); err != nil {
		return nil, wrapPDFError("extract images", err)
	}

	images, err := collectExtractedImages(tempDir)
	if err != nil {
		return nil, fmt.Errorf("failed to process extracted images: %w", err)
	}
	return images, nil
}

// ErrPassword marks documents that need a (different) password.
var ErrPassword = errors.New("pdf is encrypted")

func wrapPDFError(op string, err error) error {
	if IsPasswordError(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrPassword, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsPasswordError checks if an error is related to password/encryption issues.
func IsPasswordError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPassword) {
		return true
	}
	s := strings.ToLower(err.Error())
	for _, keyword := range []string{"password", "encrypted", "decrypt"} {
		if strings.Contains(s, keyword) {
			return true
		}
	}
	return false
}

// collectExtractedImages loads every page image in dir. Files whose names
// carry no page number, or that fail to decode, are skipped.
func collectExtractedImages(dir string) ([]PageImage, error) {
	type found struct {
		page int
		name string
		img  image.Image
	}
	var all []found

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		page, err := parsePageFromFilename(e.Name())
		if err != nil {
			continue
		}
		path := filepath.Join(dir, e.Name())
		img, _, err := utils.LoadImage(path)
		if err != nil {
			slog.Debug("Skipping unreadable PDF image", "file", e.Name(), "error", err)
			continue
		}
		all = append(all, found{page: page, name: e.Name(), img: img})
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].page != all[j].page {
			return all[i].page < all[j].page
		}
		return all[i].name < all[j].name
	})

	out := make([]PageImage, len(all))
	idx := 0
	for i, f := range all {
		if i == 0 || all[i-1].page != f.page {
			idx = 0
		}
		idx++
		out[i] = PageImage{Page: f.page, Index: idx, Image: f.img}
	}
	return out, nil
}

// parsePageFromFilename reads the page number from an extracted image
// name. Both page_<n>_image_<i>.<ext> and <base>_<n>_<id>.<ext> are
// recognized.
func parsePageFromFilename(filename string) (int, error) {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	parts := strings.Split(stem, "_")

	var candidate string
	switch {
	case strings.HasPrefix(filename, "page_") && len(parts) >= 2:
		candidate = parts[1]
	case len(parts) >= 3:
		candidate = parts[len(parts)-2]
	default:
		return 0, errors.New("not a page file")
	}

	page, err := strconv.Atoi(candidate)
	if err != nil || page <= 0 {
		return 0, errors.New("invalid page number")
	}
	return page, nil
}
