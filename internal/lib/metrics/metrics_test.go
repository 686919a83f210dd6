package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveDelivery(t *testing.T) {
	before := testutil.ToFloat64(deliveryOutcomes.WithLabelValues("acked"))
	ObserveDelivery("acked")
	assert.Equal(t, before+1, testutil.ToFloat64(deliveryOutcomes.WithLabelValues("acked")))
}

func TestObservePublish(t *testing.T) {
	ok := testutil.ToFloat64(publishedMessages.WithLabelValues("ok"))
	failed := testutil.ToFloat64(publishedMessages.WithLabelValues("failed"))

	ObservePublish(nil)
	ObservePublish(errors.New("down"))

	assert.Equal(t, ok+1, testutil.ToFloat64(publishedMessages.WithLabelValues("ok")))
	assert.Equal(t, failed+1, testutil.ToFloat64(publishedMessages.WithLabelValues("failed")))
}

func TestObservePersist(t *testing.T) {
	assert.NotPanics(t, func() {
		ObservePersist("inserted", 3*time.Millisecond)
		ObserveRequest("/api/events", 202, time.Millisecond)
	})
}
