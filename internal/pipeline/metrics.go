package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	imagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yomitori_images_processed_total",
			Help: "Total number of images processed",
		},
		[]string{"status"}, // status: ok, degraded, failed
	)

	regionsDetected = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "yomitori_regions_detected",
			Help:    "Number of text regions decoded per image",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	// Decode failures and genuinely empty images both yield zero regions.
	// They are counted separately.
	decodeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "yomitori_decode_failures_total",
			Help: "Images whose detector output could not be decoded",
		},
	)

	zeroDetectionImages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "yomitori_zero_detection_images_total",
			Help: "Images with well-formed detector output and no regions",
		},
	)

	recognitionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yomitori_recognition_failures_total",
			Help: "Regions whose recognition failed and were left empty",
		},
		[]string{"strategy"},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "yomitori_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)
)
