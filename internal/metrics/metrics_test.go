package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordBackgroundTask(t *testing.T) {
	before := testutil.ToFloat64(BackgroundTasks.WithLabelValues("summary", "failed"))
	RecordBackgroundTask("summary", "failed")
	RecordBackgroundTask("summary", "failed")
	after := testutil.ToFloat64(BackgroundTasks.WithLabelValues("summary", "failed"))
	assert.Equal(t, before+2, after)
}

func TestRecordInboundEmail(t *testing.T) {
	before := testutil.ToFloat64(InboundEmails.WithLabelValues("invalid"))
	RecordInboundEmail("invalid")
	assert.Equal(t, before+1, testutil.ToFloat64(InboundEmails.WithLabelValues("invalid")))
}

func TestRecordDraftTransition(t *testing.T) {
	before := testutil.ToFloat64(DraftTransitions.WithLabelValues("rejected"))
	RecordDraftTransition("rejected")
	assert.Equal(t, before+1, testutil.ToFloat64(DraftTransitions.WithLabelValues("rejected")))
}

func TestRecordLLMCall(t *testing.T) {
	RecordLLMCall("grade", "success", 1500*time.Millisecond)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(LLMCallDuration, "helpdesk_llm_call_duration_seconds"), 1)
}
