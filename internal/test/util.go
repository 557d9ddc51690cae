package test

import (
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/flowkit/go-optfetch/model"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

var globalSeed atomic.Int64

var labelWords = []string{"general", "random", "eng", "ops", "design", "sales", "support", "releases"}

// RandomOptions returns n options with unique random keys.
func RandomOptions(n int) model.Options {
	rng := rand.New(rand.NewSource(globalSeed.Add(1)))

	opts := make(model.Options, n)
	keySet := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("C%08X", rng.Uint32())
		if _, ok := keySet[key]; ok {
			i--
			continue
		}
		keySet[key] = struct{}{}
		opts[i] = model.Option{
			Key:   key,
			Label: fmt.Sprintf("#%s-%d", labelWords[rng.Intn(len(labelWords))], i),
		}
	}
	return opts
}

// MetricValue returns the value of the counter or gauge called name in reg.
// Labels are given as name, value pairs and select one series of a vector. A
// labeled series that has not been created yet reads as zero. The test fails
// if an unlabeled metric is not registered.
func MetricValue(t testing.TB, reg prometheus.Gatherer, name string, labels ...string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !hasLabels(m.GetLabel(), labels) {
				continue
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	if len(labels) == 0 {
		t.Fatalf("metric %s not found", name)
	}
	return 0
}

func hasLabels(pairs []*dto.LabelPair, labels []string) bool {
	for i := 0; i+1 < len(labels); i += 2 {
		var found bool
		for _, lp := range pairs {
			if lp.GetName() == labels[i] && lp.GetValue() == labels[i+1] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
