package domain

import "time"

// SessionState models the recording lifecycle.
type SessionState string

const (
	SessionStateIdle      SessionState = "idle"
	SessionStateRecording SessionState = "recording"
	SessionStateStopping  SessionState = "stopping"
	SessionStateMerging   SessionState = "merging"
	SessionStateError     SessionState = "error"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonRecorderReady      SessionStateReason = "recorder_ready"
	SessionReasonRecordingStarted   SessionStateReason = "recording_started"
	SessionReasonLaunchFailed       SessionStateReason = "launch_failed"
	SessionReasonStopRequested      SessionStateReason = "stop_requested"
	SessionReasonKeepAliveTimeout   SessionStateReason = "keep_alive_timeout"
	SessionReasonWorkersDrained     SessionStateReason = "workers_drained"
	SessionReasonMergeSkipped       SessionStateReason = "merge_skipped"
	SessionReasonMergeCompleted     SessionStateReason = "merge_completed"
	SessionReasonMergeFailed        SessionStateReason = "merge_failed"
	SessionReasonCaptureSelfStopped SessionStateReason = "capture_self_stopped"
)

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup     ErrorCode = "startup"
	ErrorCodeScreenStart ErrorCode = "screen_start"
	ErrorCodeAudioStart  ErrorCode = "audio_start"
	ErrorCodeScreenStop  ErrorCode = "screen_stop"
	ErrorCodeAudioStop   ErrorCode = "audio_stop"
	ErrorCodeMerge       ErrorCode = "merge"
)

// WorkerKind names one of the two capture subsystems.
type WorkerKind string

const (
	WorkerScreen WorkerKind = "screen"
	WorkerAudio  WorkerKind = "audio"
)

// StartResult is returned once both capture workers are running.
type StartResult struct {
	SessionID string    `json:"sessionId"`
	Basename  string    `json:"basename"`
	StartedAt time.Time `json:"startedAt"`
}

// StopResult is returned once both workers quiesced and the merge step ran.
type StopResult struct {
	Basename string `json:"basename"`
	Output   string `json:"output"`
	Merged   bool   `json:"merged"`
}

// WorkerStatus describes one capture worker of the current session.
type WorkerStatus struct {
	Kind     WorkerKind    `json:"kind"`
	Active   bool          `json:"active"`
	Draining bool          `json:"draining"`
	PID      int           `json:"pid,omitempty"`
	Process  *ProcessStats `json:"process,omitempty"`
}

// ProcessStats is a point-in-time resource sample of a worker subprocess.
type ProcessStats struct {
	CPUPercent float64 `json:"cpuPercent"`
	RSSBytes   uint64  `json:"rssBytes"`
}

// Status summarizes the current runtime status.
type Status struct {
	State         SessionState   `json:"state"`
	Active        bool           `json:"active"`
	Requested     bool           `json:"requested"`
	SessionID     string         `json:"sessionId,omitempty"`
	Basename      string         `json:"basename,omitempty"`
	PendingMerge  string         `json:"pendingMerge,omitempty"`
	LastKeepAlive time.Time      `json:"lastKeepAlive"`
	Workers       []WorkerStatus `json:"workers,omitempty"`
}
