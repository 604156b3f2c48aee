package errors

// Convenience functions for common error patterns

// Config errors

func ConfigNotFound(path string) *ExecutorError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ConfigRequired(field string) *ExecutorError {
	return New(CategoryConfig, SeverityFatal, "required configuration missing").
		WithContext("field", field)
}

func ValidationFailed(field, reason string) *ExecutorError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Task descriptor errors

func DescriptorInvalid(reason string, cause error) *ExecutorError {
	return Wrap(cause, CategoryDescriptor, SeverityFatal, "invalid build task descriptor").
		WithContext("reason", reason)
}

// Build pipeline errors

func ContextMissing(path string, cause error) *ExecutorError {
	return Wrap(cause, CategoryContext, SeverityFatal, "build context does not exist").
		WithContext("path", path)
}

func DaemonUnavailable(cause error) *ExecutorError {
	return Wrap(cause, CategoryDaemon, SeverityFatal, "container daemon unavailable")
}

func StreamFailed(image string, cause error) *ExecutorError {
	return Wrap(cause, CategoryStream, SeverityFatal, "build output stream failed").
		WithContext("image", image)
}

func ImageIDNotFound(line string) *ExecutorError {
	return New(CategoryParse, SeverityFatal, "failed to match image ID from build output").
		WithContext("line", line)
}

func TagFailed(image, tag string, cause error) *ExecutorError {
	return Wrap(cause, CategoryTag, SeverityFatal, "image tag failed").
		WithContext("image", image).
		WithContext("tag", tag)
}

// Orchestrator errors

func PublishFailed(subject string, cause error) *ExecutorError {
	return WrapRetryable(cause, CategoryOrchestrator, SeverityWarning, "orchestrator publish failed").
		WithContext("subject", subject)
}

// Internal errors

func InternalError(message string, cause error) *ExecutorError {
	return Wrap(cause, CategoryInternal, SeverityFatal, message)
}
