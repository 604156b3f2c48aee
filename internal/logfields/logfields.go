package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyTaskID     = "task_id"
	KeyTaskState  = "task_state"
	KeyExecutorID = "executor_id"
	KeyImage      = "image"
	KeyImageID    = "image_id"
	KeyTag        = "tag"
	KeyContext    = "context"
	KeyDigest     = "context_digest"
	KeyDockerHost = "docker_host"
	KeyStage      = "stage"
	KeySubject    = "subject"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func TaskID(id string) slog.Attr      { return slog.String(KeyTaskID, id) }
func TaskState(s string) slog.Attr    { return slog.String(KeyTaskState, s) }
func ExecutorID(id string) slog.Attr  { return slog.String(KeyExecutorID, id) }
func Image(name string) slog.Attr     { return slog.String(KeyImage, name) }
func ImageID(id string) slog.Attr     { return slog.String(KeyImageID, id) }
func Tag(t string) slog.Attr          { return slog.String(KeyTag, t) }
func Context(path string) slog.Attr   { return slog.String(KeyContext, path) }
func Digest(d string) slog.Attr       { return slog.String(KeyDigest, d) }
func DockerHost(h string) slog.Attr   { return slog.String(KeyDockerHost, h) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Subject(s string) slog.Attr      { return slog.String(KeySubject, s) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
