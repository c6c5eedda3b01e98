package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.InboundEvent("telegram", "text")
	rec.InboundEvent("telegram", "text")
	rec.DialogueStep("started")
	rec.ContentResult("anthropic", "fallback", 2*time.Second)
	rec.ImageResult("unsplash", "ok")
	rec.Generation("pptx", "completed", 12*time.Second)
	rec.JobAttempt("retried")

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.inboundTotal.WithLabelValues("telegram", "text")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.dialogueTotal.WithLabelValues("started")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.contentTotal.WithLabelValues("anthropic", "fallback")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.imagesTotal.WithLabelValues("unsplash", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.generationsTotal.WithLabelValues("pptx", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.jobAttemptsTotal.WithLabelValues("retried")))

	count, err := testutil.GatherAndCount(reg, "deckbot_generation_duration_seconds")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	r.InboundEvent("x", "y")
	r.Generation("pdf", "failed", time.Second)
}
