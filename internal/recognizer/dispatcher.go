package recognizer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"reflect"

	"github.com/MeKo-Tech/yomitori/internal/detector"
)

// Dispatcher crops regions and routes them to the matching strategy.
type Dispatcher struct {
	cascade    bool
	strategies map[Kind]Strategy
	crop       CropOptions
}

// NewCascade builds a dispatcher that picks short, medium or long by the
// region's predicted character count category.
func NewCascade(short, medium, long Strategy) (*Dispatcher, error) {
	if short == nil || medium == nil || long == nil {
		return nil, fmt.Errorf("%w: cascade needs short, medium and long strategies", ErrNoStrategy)
	}
	return &Dispatcher{
		cascade: true,
		strategies: map[Kind]Strategy{
			KindShort:  short,
			KindMedium: medium,
			KindLong:   long,
		},
		crop: DefaultCropOptions(),
	}, nil
}

// NewSingle builds a dispatcher that uses s for every region.
func NewSingle(s Strategy) (*Dispatcher, error) {
	if s == nil {
		return nil, ErrNoStrategy
	}
	return &Dispatcher{
		strategies: map[Kind]Strategy{KindSingle: s},
		crop:       DefaultCropOptions(),
	}, nil
}

// WithCropOptions returns a copy of the dispatcher using opts.
func (d *Dispatcher) WithCropOptions(opts CropOptions) *Dispatcher {
	cp := *d
	cp.crop = opts
	return &cp
}

// Cascade reports whether the dispatcher selects by category.
func (d *Dispatcher) Cascade() bool { return d.cascade }

// Strategy returns the strategy bound to kind, if any.
func (d *Dispatcher) Strategy(kind Kind) (Strategy, bool) {
	s, ok := d.strategies[kind]
	return s, ok
}

// Recognize crops region out of img and runs the selected strategy. The
// returned Kind is valid even when err is non-nil.
func (d *Dispatcher) Recognize(ctx context.Context, img image.Image, region detector.TextRegion) (string, Kind, error) {
	kind := Select(region.CharCountCategory, d.cascade)
	s, ok := d.strategies[kind]
	if !ok {
		return "", kind, fmt.Errorf("%w: %s", ErrNoStrategy, kind)
	}

	crop, err := CropRegion(img, region.Box, d.crop)
	if err != nil {
		return "", kind, fmt.Errorf("crop %s: %w", region, err)
	}
	text, err := s.Recognize(ctx, crop)
	if err != nil {
		return "", kind, fmt.Errorf("%s strategy: %w", kind, err)
	}
	return text, kind, nil
}

// Close closes every strategy that implements io.Closer.
func (d *Dispatcher) Close() error {
	var errs []error
	seen := map[io.Closer]bool{}
	for _, kind := range []Kind{KindShort, KindMedium, KindLong, KindSingle} {
		c, ok := d.strategies[kind].(io.Closer)
		if !ok {
			continue
		}
		// The same strategy may back several slots.
		if reflect.TypeOf(c).Comparable() {
			if seen[c] {
				continue
			}
			seen[c] = true
		}
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
