// Package classifier wraps the external text-classification model the
// lifecycle engine consults at intake. The model itself is out of scope;
// this package specifies only the request/response contract and the
// confidence threshold the core relies on. It must never return an error
// to the caller: upstream timeouts or malformed responses degrade to
// needs-manual-routing with zero confidence (fail closed).
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/PaesslerAG/jsonpath"

	"github.com/openmuni/grievance-core/internal/app/metrics"
)

// Threshold is the minimum confidence at or above which a classification is
// trusted without manual routing.
const Threshold = 0.7

// DefaultTimeout bounds every classifier call; it is never exceeded because
// the adapter degrades rather than blocks the intake/create path.
const DefaultTimeout = 5 * time.Second

// Request is what the adapter sends to the upstream model.
type Request struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	Location      string `json:"location,omitempty"`
	ImageAnalysis string `json:"image_analysis,omitempty"`
}

// Result is the classification the lifecycle engine applies to a new
// complaint at intake.
type Result struct {
	CategoryID       int64
	DepartmentID     int64
	Priority         string
	Confidence       float64
	Reasoning        string
	NeedsManualRoute bool
}

// degraded is the fail-closed result returned whenever the upstream call
// cannot be trusted.
func degraded(reasoning string) Result {
	return Result{Priority: "MEDIUM", Confidence: 0, Reasoning: reasoning, NeedsManualRoute: true}
}

// Adapter calls an HTTP classification endpoint and parses its response with
// jsonpath so a flexible or partial upstream schema never panics the
// adapter; any path-read failure or timeout degrades instead of erroring.
type Adapter struct {
	endpoint string
	client   *http.Client
}

// New builds an Adapter against endpoint, using client if non-nil (a client
// with no explicit Timeout gets DefaultTimeout enforced per-request via
// context instead, so callers sharing a client are unaffected).
func New(endpoint string, client *http.Client) *Adapter {
	if client == nil {
		client = &http.Client{}
	}
	return &Adapter{endpoint: endpoint, client: client}
}

// Classify calls the upstream model with an explicit deadline and returns a
// Result. It never returns an error: any failure mode yields a degraded
// Result with NeedsManualRoute=true, Confidence=0, exactly as §4.2 requires.
func (a *Adapter) Classify(ctx context.Context, req Request) Result {
	if a == nil || a.endpoint == "" {
		metrics.RecordClassifierCall("degraded")
		return degraded("classifier not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		metrics.RecordClassifierCall("degraded")
		return degraded("failed to encode classifier request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		metrics.RecordClassifierCall("degraded")
		return degraded("failed to build classifier request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		metrics.RecordClassifierCall("timeout")
		return degraded("classifier request failed or timed out")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordClassifierCall("degraded")
		return degraded("classifier returned non-200 status")
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.RecordClassifierCall("degraded")
		return degraded("failed to read classifier response")
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		metrics.RecordClassifierCall("degraded")
		return degraded("failed to decode classifier response")
	}

	result, ok := parse(payload)
	if !ok {
		metrics.RecordClassifierCall("degraded")
		return degraded("classifier response missing required fields")
	}
	result.NeedsManualRoute = result.Confidence < Threshold
	metrics.RecordClassifierCall("ok")
	return result
}

// parse reads the (possibly nested, possibly extra-field) upstream payload
// via jsonpath so a schema drift in fields we don't read never breaks this
// adapter. It tolerates either a flat shape or one nested under
// "classification".
func parse(payload any) (Result, bool) {
	categoryID, ok1 := pathFloat(payload, "$.category_id", "$.classification.category_id")
	departmentID, ok2 := pathFloat(payload, "$.department_id", "$.classification.department_id")
	confidence, ok3 := pathFloat(payload, "$.confidence", "$.classification.confidence")
	if !ok1 || !ok2 || !ok3 {
		return Result{}, false
	}
	priority, _ := pathString(payload, "$.priority", "$.classification.priority")
	if priority == "" {
		priority = "MEDIUM"
	}
	reasoning, _ := pathString(payload, "$.reasoning", "$.classification.reasoning")

	return Result{
		CategoryID:   int64(categoryID),
		DepartmentID: int64(departmentID),
		Priority:     priority,
		Confidence:   confidence,
		Reasoning:    reasoning,
	}, true
}

func pathFloat(payload any, paths ...string) (float64, bool) {
	for _, p := range paths {
		v, err := jsonpath.Get(p, payload)
		if err != nil {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n, true
		case int:
			return float64(n), true
		}
	}
	return 0, false
}

func pathString(payload any, paths ...string) (string, bool) {
	for _, p := range paths {
		v, err := jsonpath.Get(p, payload)
		if err != nil {
			continue
		}
		if s, ok := v.(string); ok {
			return s, true
		}
	}
	return "", false
}
