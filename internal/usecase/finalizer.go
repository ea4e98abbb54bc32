package usecase

import (
	"context"
	"errors"

	"screenrec/internal/domain"
	"screenrec/internal/ports"
)

const combinedSuffix = "-combined"

type mergeFinalizer struct {
	merger ports.Merger
	events ports.EventSink
}

func newMergeFinalizer(merger ports.Merger, events ports.EventSink) mergeFinalizer {
	return mergeFinalizer{merger: merger, events: events}
}

func (f mergeFinalizer) Finalize(ctx context.Context, basename string) (domain.StopResult, domain.SessionStateReason, error) {
	video := basename + VideoExt
	audio := basename + AudioExt

	f.events.SessionStateChanged(domain.SessionStateMerging, domain.SessionReasonWorkersDrained)

	merged, err := f.merger.Merge(ctx, video, audio)
	if err != nil {
		var mergeErr *domain.MergeError
		if !errors.As(err, &mergeErr) {
			err = &domain.MergeError{Video: video, Audio: audio, Err: err}
		}
		f.events.SessionError(domain.ErrorCodeMerge, err.Error())
		return domain.StopResult{Basename: basename, Output: video}, domain.SessionReasonMergeFailed, err
	}

	result := domain.StopResult{
		Basename: basename,
		Output:   merged.Output,
		Merged:   merged.Merged,
	}
	if !merged.Merged {
		return result, domain.SessionReasonMergeSkipped, nil
	}
	return result, domain.SessionReasonMergeCompleted, nil
}
