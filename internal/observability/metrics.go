package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveRecorders = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "arcos",
		Name:      "active_recorders",
		Help:      "Number of running camera recorders",
	})

	RecordingCameras = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "arcos",
		Name:      "recording_cameras",
		Help:      "Number of cameras currently writing a segment",
	})

	SegmentsSaved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arcos",
		Name:      "segments_saved_total",
		Help:      "Total number of finalized segments persisted",
	}, []string{"camera_id", "trigger"})

	SegmentsDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arcos",
		Name:      "segments_discarded_total",
		Help:      "Total number of undersized segments deleted",
	}, []string{"camera_id"})

	MotionTriggers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arcos",
		Name:      "motion_triggers_total",
		Help:      "Total number of motion detections that started a segment",
	}, []string{"camera_id"})

	DetectorRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arcos",
		Name:      "motion_detector_restarts_total",
		Help:      "Total number of motion sampler restarts after read failures",
	}, []string{"camera_id"})

	AnalysesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "arcos",
		Name:      "analyses_in_flight",
		Help:      "Number of segment analyses currently running",
	})

	AnalysisQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "arcos",
		Name:      "analysis_queue_depth",
		Help:      "Number of segments waiting for analysis",
	})

	FacesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arcos",
		Name:      "faces_detected_total",
		Help:      "Total number of face regions detected",
	}, []string{"camera_id"})

	FaceOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arcos",
		Name:      "face_outcomes_total",
		Help:      "Per-face analysis outcomes",
	}, []string{"outcome"})

	VisitorsEnrolled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "arcos",
		Name:      "visitors_enrolled_total",
		Help:      "Total number of auto-enrolled visitor identities",
	})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "arcos",
		Name:      "inference_duration_seconds",
		Help:      "Duration of analysis stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"stage"})

	RetentionDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arcos",
		Name:      "retention_deleted_total",
		Help:      "Objects removed by the retention job",
	}, []string{"kind"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "arcos",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "arcos",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
