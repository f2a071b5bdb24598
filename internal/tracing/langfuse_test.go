package tracing

import (
	"testing"

	"github.com/54b3r/pdfrag-go/internal/config"
)

func TestSetup_Disabled(t *testing.T) {
	t.Parallel()

	for _, tc := range []config.Tracing{
		{},
		{PublicKey: "pk"},
		{SecretKey: "sk"},
	} {
		handler, flush, ok := Setup(tc)
		if ok || handler != nil || flush != nil {
			t.Errorf("Setup(%+v) = (%v, %v, %v), want disabled", tc, handler, flush != nil, ok)
		}
	}
}

func TestInstall_DisabledFlushIsNoop(t *testing.T) {
	t.Parallel()

	flush := Install(config.Tracing{})
	if flush == nil {
		t.Fatal("Install must always return a flush function")
	}
	flush()
}

func TestSetup_Enabled(t *testing.T) {
	t.Parallel()

	handler, flush, ok := Setup(config.Tracing{PublicKey: "pk-lf-test", SecretKey: "sk-lf-test"})
	if !ok || handler == nil || flush == nil {
		t.Fatalf("Setup with both keys: ok=%v handler=%v", ok, handler)
	}
}
