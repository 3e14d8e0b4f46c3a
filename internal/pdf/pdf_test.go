package pdf

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/yomitori/internal/detector"
	"github.com/MeKo-Tech/yomitori/internal/onnx/mock"
	"github.com/MeKo-Tech/yomitori/internal/pipeline"
	"github.com/MeKo-Tech/yomitori/internal/recognizer"
	"github.com/MeKo-Tech/yomitori/internal/testutil"
)

func TestParsePageRange(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{in: "", want: nil},
		{in: "  ", want: nil},
		{in: "3", want: []int{3}},
		{in: "1-3", want: []int{1, 2, 3}},
		{in: "1, 4-5 ,9", want: []int{1, 4, 5, 9}},
		{in: "5-3", wantErr: true},
		{in: "1-2-3", wantErr: true},
		{in: "a", wantErr: true},
		{in: "0", wantErr: true},
		{in: "0-2", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parsePageRange(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParsePageFromFilename(t *testing.T) {
	tests := []struct {
		name string
		page int
		ok   bool
	}{
		{"page_1_image_1.png", 1, true},
		{"page_12_image_3.jpg", 12, true},
		{"scan_2_Im0.png", 2, true},
		{"my_scan_doc_7_12.tif", 7, true},
		{"random.png", 0, false},
		{"page_x_image_1.png", 0, false},
		{"doc_0_Im1.png", 0, false},
	}
	for _, tt := range tests {
		page, err := parsePageFromFilename(tt.name)
		if !tt.ok {
			assert.Error(t, err, tt.name)
			continue
		}
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.page, page, tt.name)
	}
}

func TestCollectExtractedImages(t *testing.T) {
	dir := t.TempDir()
	testutil.SaveImage(t, dir, "page_2_image_1.png", testutil.CreateTestImage(20, 10, color.White))
	testutil.SaveImage(t, dir, "page_1_image_2.png", testutil.CreateTestImage(30, 10, color.White))
	testutil.SaveImage(t, dir, "page_1_image_1.png", testutil.CreateTestImage(40, 10, color.White))
	testutil.SaveImage(t, dir, "unrelated.png", testutil.CreateTestImage(5, 5, color.White))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page_3_image_1.png"), []byte("broken"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "page_4_dir_1"), 0o750))

	images, err := collectExtractedImages(dir)
	require.NoError(t, err)
	require.Len(t, images, 3)
	assert.Equal(t, []int{1, 1, 2}, []int{images[0].Page, images[1].Page, images[2].Page})
	assert.Equal(t, []int{1, 2, 1}, []int{images[0].Index, images[1].Index, images[2].Index})
	assert.Equal(t, 40, images[0].Image.Bounds().Dx())
	assert.Equal(t, 30, images[1].Image.Bounds().Dx())
}

func TestExtractImagesErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := ExtractImages(filepath.Join(dir, "missing.pdf"), "", "")
	assert.Error(t, err)

	notPDF := filepath.Join(dir, "fake.pdf")
	require.NoError(t, os.WriteFile(notPDF, []byte("hello"), 0o600))
	_, err = ExtractImages(notPDF, "", "")
	assert.Error(t, err)

	_, err = ExtractImages(notPDF, "3-1", "")
	assert.ErrorContains(t, err, "invalid page range")

	_, err = PageCount(notPDF, "")
	assert.Error(t, err)
}

func TestIsPasswordError(t *testing.T) {
	assert.False(t, IsPasswordError(nil))
	assert.True(t, IsPasswordError(errors.New("pdfcpu: please provide the correct password")))
	assert.True(t, IsPasswordError(wrapPDFError("extract", errors.New("file is encrypted"))))
	assert.ErrorIs(t, wrapPDFError("extract", errors.New("file is encrypted")), ErrPassword)
	assert.False(t, IsPasswordError(errors.New("syntax error")))
}

// newPipeline reads crops wider than 60px as "wide" so images are distinguishable.
func newPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	cfg := pipeline.DefaultConfig()
	cfg.Detector.InputSize = 64
	engine := mock.NewEngine(mock.PackedOutput("output",
		mock.Detection{X1: 0, Y1: 0, X2: 32, Y2: 16, Score: 0.9},
	))
	det, err := detector.NewWithEngine(engine, cfg.Detector)
	require.NoError(t, err)
	disp, err := recognizer.NewSingle(recognizer.StrategyFunc(func(_ context.Context, crop image.Image) (string, error) {
		if crop.Bounds().Dx() > 60 {
			return "wide", nil
		}
		return "narrow", nil
	}))
	require.NoError(t, err)
	p, err := pipeline.NewPipeline(det, disp, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestProcessFile(t *testing.T) {
	var gotRange, gotPassword string
	extract := func(_, pageRange, password string) ([]PageImage, error) {
		gotRange, gotPassword = pageRange, password
		return []PageImage{
			{Page: 1, Index: 1, Image: testutil.CreateTestImage(128, 128, color.White)},
			{Page: 1, Index: 2, Image: testutil.CreateTestImage(64, 64, color.White)},
			{Page: 3, Index: 1, Image: testutil.CreateTestImage(64, 64, color.White)},
		}, nil
	}

	proc := NewProcessor(newPipeline(t)).WithExtractor(extract)
	doc, err := proc.ProcessFile(context.Background(), "doc.pdf", Options{PageRange: "1-3", Password: "pw"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "1-3", gotRange)
	assert.Equal(t, "pw", gotPassword)

	require.Len(t, doc.Pages, 2)
	assert.Equal(t, 1, doc.Pages[0].Page)
	assert.Len(t, doc.Pages[0].Images, 2)
	assert.Equal(t, "wide\nnarrow", doc.Pages[0].Text)
	assert.Equal(t, 3, doc.Pages[1].Page)
	assert.Equal(t, "wide\nnarrow\n\f\nnarrow", doc.Text)
	assert.Equal(t, "page-1-2", doc.Pages[0].Images[1].ID)
}

func TestProcessFileErrors(t *testing.T) {
	proc := NewProcessor(newPipeline(t))

	proc.WithExtractor(func(string, string, string) ([]PageImage, error) { return nil, nil })
	_, err := proc.ProcessFile(context.Background(), "empty.pdf", Options{}, nil)
	assert.ErrorIs(t, err, ErrNoImages)

	boom := errors.New("boom")
	proc.WithExtractor(func(string, string, string) ([]PageImage, error) { return nil, boom })
	_, err = proc.ProcessFile(context.Background(), "bad.pdf", Options{}, nil)
	assert.ErrorIs(t, err, boom)

	proc.WithExtractor(func(string, string, string) ([]PageImage, error) {
		return []PageImage{{Page: 1, Index: 1, Image: testutil.CreateTestImage(64, 64, color.White)}}, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	doc, err := proc.ProcessFile(ctx, "doc.pdf", Options{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, doc.Cancelled)
	assert.Empty(t, doc.Pages)
}
