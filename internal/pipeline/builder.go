package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/MeKo-Tech/yomitori/internal/detector"
	"github.com/MeKo-Tech/yomitori/internal/onnx"
	"github.com/MeKo-Tech/yomitori/internal/recognizer"
)

// EngineFactory opens an inference engine for one model.
type EngineFactory func(cfg onnx.SessionConfig) (onnx.Engine, error)

func defaultEngineFactory(cfg onnx.SessionConfig) (onnx.Engine, error) {
	return onnx.NewSession(cfg)
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg     Config
	factory EngineFactory
	charset *recognizer.Charset
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// NewBuilderFromConfig starts from cfg instead of the defaults.
func NewBuilderFromConfig(cfg Config) *Builder { return &Builder{cfg: cfg} }

// WithModelsDir sets the models directory and updates every model path.
func (b *Builder) WithModelsDir(dir string) *Builder {
	if dir != "" {
		b.cfg.UpdateModelPaths(dir)
	}
	return b
}

// WithDetectorModelPath overrides the layout model path.
func (b *Builder) WithDetectorModelPath(path string) *Builder {
	if path != "" {
		b.cfg.Detector.ModelPath = path
	}
	return b
}

// WithCharsetPath overrides the charset path.
func (b *Builder) WithCharsetPath(path string) *Builder {
	if path != "" {
		b.cfg.Recognition.CharsetPath = path
	}
	return b
}

// WithCharset uses an already loaded charset.
func (b *Builder) WithCharset(cs *recognizer.Charset) *Builder {
	b.charset = cs
	return b
}

// WithCascade toggles length-based strategy selection.
func (b *Builder) WithCascade(enabled bool) *Builder {
	b.cfg.Recognition.Cascade = enabled
	return b
}

// WithRecognitionEngine selects "onnx" or "tesseract".
func (b *Builder) WithRecognitionEngine(engine string) *Builder {
	if engine != "" {
		b.cfg.Recognition.Engine = strings.ToLower(engine)
	}
	return b
}

// WithTesseractLanguages sets the languages for the tesseract engine.
func (b *Builder) WithTesseractLanguages(langs ...string) *Builder {
	b.cfg.Recognition.TesseractLanguages = langs
	return b
}

// WithThreads sets intra-op thread counts for every model (if >0).
func (b *Builder) WithThreads(n int) *Builder {
	if n > 0 {
		b.cfg.Detector.NumThreads = n
		b.cfg.Recognition.NumThreads = n
	}
	return b
}

// WithLibraryPath sets the onnxruntime shared library path.
func (b *Builder) WithLibraryPath(path string) *Builder {
	b.cfg.Detector.LibraryPath = path
	b.cfg.Recognition.LibraryPath = path
	return b
}

// WithGPU enables GPU acceleration for every model.
func (b *Builder) WithGPU(enabled bool) *Builder {
	b.cfg.Detector.GPU.UseGPU = enabled
	b.cfg.Recognition.GPU.UseGPU = enabled
	return b
}

// WithGPUDevice sets the CUDA device id for every model.
func (b *Builder) WithGPUDevice(deviceID int) *Builder {
	b.cfg.Detector.GPU.DeviceID = deviceID
	b.cfg.Recognition.GPU.DeviceID = deviceID
	return b
}

// WithScoreThreshold sets the detector confidence cut-off.
func (b *Builder) WithScoreThreshold(th float64) *Builder {
	if th > 0 {
		b.cfg.Detector.Decode.ScoreThreshold = th
	}
	return b
}

// WithNMS configures non-maximum suppression.
func (b *Builder) WithNMS(enabled bool, iou float64) *Builder {
	b.cfg.Detector.Decode.UseNMS = enabled
	if iou > 0 {
		b.cfg.Detector.Decode.NMSThreshold = iou
	}
	return b
}

// WithReadingOrder replaces the reading order configuration.
func (b *Builder) WithReadingOrder(cfg ReadingOrderConfig) *Builder {
	b.cfg.ReadingOrder = cfg
	return b
}

// WithProgressCallback sets the batch progress observer.
func (b *Builder) WithProgressCallback(cb ProgressCallback) *Builder {
	b.cfg.BatchProgress = cb
	return b
}

// WithEngineFactory replaces how model files become engines.
func (b *Builder) WithEngineFactory(f EngineFactory) *Builder {
	b.factory = f
	return b
}

// Config returns a copy of the current config.
func (b *Builder) Config() Config { return b.cfg }

// requiredFiles lists the files Build will open itself. With a custom
// engine factory model files are the factory's concern and only the
// charset is checked.
func (b *Builder) requiredFiles() []string {
	tesseract := strings.ToLower(b.cfg.Recognition.Engine) == EngineTesseract
	var files []string
	if !tesseract && b.charset == nil {
		files = append(files, b.cfg.Recognition.CharsetPath)
	}
	if b.factory != nil {
		return files
	}
	files = append(files, b.cfg.Detector.ModelPath)
	switch {
	case tesseract:
	case b.cfg.Recognition.Cascade:
		files = append(files, b.cfg.Recognition.ShortModelPath, b.cfg.Recognition.MediumModelPath, b.cfg.Recognition.LongModelPath)
	default:
		files = append(files, b.cfg.Recognition.SingleModelPath)
	}
	return files
}

// Validate checks configuration and that the files Build needs exist.
func (b *Builder) Validate() error {
	if err := b.cfg.Validate(); err != nil {
		return err
	}
	var errs []error
	for _, f := range b.requiredFiles() {
		if _, err := os.Stat(f); err != nil {
			errs = append(errs, fmt.Errorf("model file not found: %s", f))
		}
	}
	return errors.Join(errs...)
}

// Build initializes the pipeline components.
func (b *Builder) Build() (*Pipeline, error) {
	return b.BuildWithProgress(nil)
}

// BuildWithProgress is Build reporting model loading progress to sink.
// Every failure is an initialization error.
func (b *Builder) BuildWithProgress(sink ProgressSink) (*Pipeline, error) {
	r := reporter{sink: sink}
	r.report(StageInitializing, 0.02, "Initializing...")

	fail := func(err error) (*Pipeline, error) {
		return nil, newError(KindInitialization, StageInitialization, "", err)
	}
	if err := b.Validate(); err != nil {
		return fail(err)
	}
	factory := b.factory
	if factory == nil {
		factory = defaultEngineFactory
	}

	detEngine, err := factory(onnx.SessionConfig{
		ModelPath:   b.cfg.Detector.ModelPath,
		NumThreads:  b.cfg.Detector.NumThreads,
		LibraryPath: b.cfg.Detector.LibraryPath,
		GPU:         b.cfg.Detector.GPU,
	})
	if err != nil {
		return fail(fmt.Errorf("init detector: %w", err))
	}
	det, err := detector.NewWithEngine(detEngine, b.cfg.Detector)
	if err != nil {
		_ = detEngine.Close()
		return fail(fmt.Errorf("init detector: %w", err))
	}
	r.report(StageLoadingLayoutModel, 0.25, "Loading layout model... 100%%")

	disp, err := b.buildDispatcher(factory, r)
	if err != nil {
		_ = det.Close()
		return fail(err)
	}

	p, err := NewPipeline(det, disp, b.cfg)
	if err != nil {
		_ = disp.Close()
		_ = det.Close()
		return nil, err
	}
	r.report(StageInitialized, 1.0, "Ready")
	slog.Info("pipeline initialized",
		"models_dir", b.cfg.ModelsDir,
		"engine", b.cfg.Recognition.Engine,
		"cascade", disp.Cascade())
	return p, nil
}

func (b *Builder) buildDispatcher(factory EngineFactory, r reporter) (*recognizer.Dispatcher, error) {
	rc := b.cfg.Recognition
	if strings.ToLower(rc.Engine) == EngineTesseract {
		ts, err := recognizer.NewTesseractStrategy(rc.TesseractLanguages...)
		if err != nil {
			return nil, fmt.Errorf("init tesseract: %w", err)
		}
		var s recognizer.Strategy = ts
		r.report(StageLoadingRecognitionModel, 0.85, "Loading recognition model (tesseract)... 100%%")
		d, err := recognizer.NewSingle(s)
		if err != nil {
			return nil, err
		}
		return d.WithCropOptions(rc.Crop), nil
	}

	charset := b.charset
	if charset == nil {
		cs, err := recognizer.LoadCharset(rc.CharsetPath)
		if err != nil {
			return nil, fmt.Errorf("load charset: %w", err)
		}
		charset = cs
	}

	type slot struct {
		path     string
		width    int
		maxChars int
	}
	var slots []slot
	if rc.Cascade {
		slots = []slot{
			{rc.ShortModelPath, 256, 30},
			{rc.MediumModelPath, 384, 50},
			{rc.LongModelPath, 768, 100},
		}
	} else {
		slots = []slot{{rc.SingleModelPath, 768, 100}}
	}

	strategies := make([]recognizer.Strategy, 0, len(slots))
	closeAll := func() {
		for _, s := range strategies {
			if c, ok := s.(io.Closer); ok {
				_ = c.Close()
			}
		}
	}
	for i, sl := range slots {
		engine, err := factory(onnx.SessionConfig{
			ModelPath:   sl.path,
			NumThreads:  rc.NumThreads,
			LibraryPath: rc.LibraryPath,
			GPU:         rc.GPU,
		})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("init recognizer (%d): %w", sl.maxChars, err)
		}
		sc := recognizer.DefaultConfig(sl.path, sl.width)
		sc.Height = rc.Height
		sc.Clean = rc.Clean
		s, err := recognizer.NewONNXStrategyWithEngine(engine, sc, charset)
		if err != nil {
			_ = engine.Close()
			closeAll()
			return nil, fmt.Errorf("init recognizer (%d): %w", sl.maxChars, err)
		}
		strategies = append(strategies, s)
		frac := 0.25 + 0.6*float64(i+1)/float64(len(slots))
		r.report(StageLoadingRecognitionModel, frac, "Loading recognition model (%d)... 100%%", sl.maxChars)
	}

	var (
		d   *recognizer.Dispatcher
		err error
	)
	if rc.Cascade {
		d, err = recognizer.NewCascade(strategies[0], strategies[1], strategies[2])
	} else {
		d, err = recognizer.NewSingle(strategies[0])
	}
	if err != nil {
		closeAll()
		return nil, err
	}
	return d.WithCropOptions(rc.Crop), nil
}

// RequiredModels returns the catalog names needed by the configuration.
func RequiredModels(cfg Config) []string {
	names := []string{"layout"}
	if strings.ToLower(cfg.Recognition.Engine) == EngineTesseract {
		return names
	}
	names = append(names, "charset")
	if cfg.Recognition.Cascade {
		return append(names, "recognition30", "recognition50", "recognition100")
	}
	return append(names, "recognition100")
}
