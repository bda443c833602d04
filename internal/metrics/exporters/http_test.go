package exporters

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/smazurov/gokucam/internal/metrics"
)

func TestHTTPHandler(t *testing.T) {
	metrics.SetState("streaming")
	metrics.IncRecovery("ok")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	HTTPHandler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	for _, want := range []string{
		`gokucam_stream_state{state="streaming"} 1`,
		`gokucam_stream_recoveries_total{result="ok"}`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}
