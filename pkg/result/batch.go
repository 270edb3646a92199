package result

import "github.com/lushly-dev/afd/pkg/result/errcode"

// FailedItem records one failed element of a batch operation, keeping the
// original input alongside the error so a caller can retry just that item.
type FailedItem[In any] struct {
	Index int          `json:"index"`
	Input In           `json:"input"`
	Error CommandError `json:"error"`
}

// BatchSummary totals up a batch run.
type BatchSummary struct {
	Total        int `json:"total"`
	SuccessCount int `json:"successCount"`
	FailureCount int `json:"failureCount"`
}

// BatchResult is the payload of a batch command's Result[BatchResult[...]].
type BatchResult[In, Out any] struct {
	Succeeded []Out            `json:"succeeded"`
	Failed    []FailedItem[In] `json:"failed"`
	Summary   BatchSummary     `json:"summary"`
}

// ErrClassifier turns a per-item error into the CommandError shape recorded
// on the failed item.
type ErrClassifier func(err error) CommandError

// Batch runs fn over each item and assembles a BatchResult. This ALWAYS
// returns a successful envelope — a batch is never failed outright
// just because some of its items failed. When at least one item fails, a
// PARTIAL_SUCCESS warning is attached so callers can tell the two cases apart
// without inspecting Summary.FailureCount themselves.
func Batch[In, Out any](items []In, fn func(index int, item In) (Out, error), classify ErrClassifier) Result[BatchResult[In, Out]] {
	br := BatchResult[In, Out]{
		Summary: BatchSummary{Total: len(items)},
	}

	for i, item := range items {
		out, err := fn(i, item)
		if err != nil {
			ce := classify(err)
			br.Failed = append(br.Failed, FailedItem[In]{Index: i, Input: item, Error: ce})
			br.Summary.FailureCount++
			continue
		}
		br.Succeeded = append(br.Succeeded, out)
		br.Summary.SuccessCount++
	}

	opts := []Option[BatchResult[In, Out]]{}
	if br.Summary.FailureCount > 0 {
		opts = append(opts, WithWarnings[BatchResult[In, Out]](Warning{
			Code:     errcode.PartialSuccess,
			Message:  "one or more batch items failed; see data.failed",
			Severity: SeverityWarning,
		}))
	}
	return Success(br, opts...)
}
