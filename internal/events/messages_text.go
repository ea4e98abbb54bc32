package events

import "screenrec/internal/domain"

// ReasonMessage is a human readable label for a state transition.
func ReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonRecorderReady:
		return "Recorder ready"
	case domain.SessionReasonRecordingStarted:
		return "Recording started"
	case domain.SessionReasonLaunchFailed:
		return "Capture failed to start"
	case domain.SessionReasonStopRequested:
		return "Recording stopped, finalizing capture"
	case domain.SessionReasonKeepAliveTimeout:
		return "No keep-alive received, closing capture"
	case domain.SessionReasonWorkersDrained:
		return "Capture finalized, merging"
	case domain.SessionReasonMergeSkipped:
		return "Recording saved without audio"
	case domain.SessionReasonMergeCompleted:
		return "Recording saved"
	case domain.SessionReasonMergeFailed:
		return "Merge failed, sources kept"
	case domain.SessionReasonCaptureSelfStopped:
		return "Capture ended unexpectedly"
	default:
		return ""
	}
}

// ErrorMessage is a short summary for an error code, falling back to detail.
func ErrorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeScreenStart:
		return "Screen capture failed to start"
	case domain.ErrorCodeAudioStart:
		return "Audio capture failed to start"
	case domain.ErrorCodeScreenStop:
		return "Screen capture stop issue"
	case domain.ErrorCodeAudioStop:
		return "Audio capture stop issue"
	case domain.ErrorCodeMerge:
		return "Merge failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
