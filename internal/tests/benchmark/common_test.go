package benchmark

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"testing"

	"github.com/yndnr/onboard-go/internal/core/domain"
	"github.com/yndnr/onboard-go/internal/storage/kv"
	"github.com/yndnr/onboard-go/internal/storage/snapshot"
	"github.com/yndnr/onboard-go/internal/telemetry/logger"
	"github.com/yndnr/onboard-go/pkg/crypto/adaptive"
)

// SessionCounts defines how many stored sessions list benchmarks run against.
var SessionCounts = []int{100, 1000, 5000}

// PayloadSizes are approximate snapshot data sizes in bytes.
var PayloadSizes = []int{512, 4 << 10, 64 << 10}

var benchKey = []byte("0123456789abcdef0123456789abcdef")

// engines lists the backends under benchmark.
var engines = []string{kv.EngineMemory, kv.EngineFile, kv.EngineBadger}

// openBackend opens a fresh backend of the given engine.
func openBackend(b *testing.B, engine string) kv.Backend {
	b.Helper()
	cfg := kv.DefaultConfig()
	cfg.Engine = engine
	cfg.Dir = b.TempDir()
	cfg.QuotaBytes = 0
	backend, err := kv.Open(cfg, logger.Discard())
	if err != nil {
		b.Fatalf("open %s backend: %v", engine, err)
	}
	b.Cleanup(func() { backend.Close() })
	return backend
}

// newStore builds a snapshot store, optionally encrypting with cipherType.
func newStore(b *testing.B, backend kv.Backend, cipherType adaptive.CipherType) *snapshot.Store {
	b.Helper()
	opts := []snapshot.Option{snapshot.WithLogger(logger.Discard())}
	if cipherType != "" {
		c, err := adaptive.NewWithType(benchKey, cipherType)
		if err != nil {
			b.Fatal(err)
		}
		opts = append(opts, snapshot.WithCipher(c))
	}
	return snapshot.New(backend, opts...)
}

// onboardingPayload returns onboarding data of roughly size bytes.
func onboardingPayload(size int) *domain.OnboardingData {
	data := &domain.OnboardingData{}
	note := strings.Repeat("x", size/2)
	data.Merge(domain.StepParentInfo, mustJSON(map[string]string{
		"firstName": "Ana", "lastName": "Silva", "email": "ana@example.com",
	}))
	data.Merge(domain.StepClinicalIntake, mustJSON(map[string]string{
		"concerns": note, "history": note,
	}))
	return data
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// reportMemory reports heap usage after a GC.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
}

// runWithSizes runs fn once per payload size.
func runWithSizes(b *testing.B, fn func(b *testing.B, size int)) {
	for _, size := range PayloadSizes {
		b.Run(fmt.Sprintf("payload_%dB", size), func(b *testing.B) {
			fn(b, size)
		})
	}
}
