package glog

import (
	"context"
	"fmt"

	"github.com/siepkes/sfs/util"
)

const requestIDField = "request_id"

// formatMetaTag returns a formatted request ID tag from the context,
// like "request_id:abc123". Returns an empty string if no request ID is found.
func formatMetaTag(ctx context.Context) string {
	if requestID := util.GetRequestID(ctx); requestID != "" {
		return fmt.Sprintf("%s:%s", requestIDField, requestID)
	}
	return ""
}

// InfoCtx is a context-aware alternative to Verbose.Info: it logs to the
// INFO log, guarded by the value of v, and prepends a request ID from the
// context if present.
func (v Verbose) InfoCtx(ctx context.Context, args ...interface{}) {
	if !v {
		return
	}
	if metaTag := formatMetaTag(ctx); metaTag != "" {
		args = append([]interface{}{metaTag}, args...)
	}
	logging.print(infoLog, args...)
}

// InfofCtx is a context-aware alternative to Verbose.Infof.
func (v Verbose) InfofCtx(ctx context.Context, format string, args ...interface{}) {
	if !v {
		return
	}
	if metaTag := formatMetaTag(ctx); metaTag != "" {
		format = metaTag + " " + format
	}
	logging.printf(infoLog, format, args...)
}

// WarningCtx prepends a request ID from ctx, if present, to an unconditional warning.
func WarningCtx(ctx context.Context, args ...interface{}) {
	if metaTag := formatMetaTag(ctx); metaTag != "" {
		args = append([]interface{}{metaTag}, args...)
	}
	logging.print(warningLog, args...)
}

// WarningfCtx is the formatted variant of WarningCtx.
func WarningfCtx(ctx context.Context, format string, args ...interface{}) {
	if metaTag := formatMetaTag(ctx); metaTag != "" {
		format = metaTag + " " + format
	}
	logging.printf(warningLog, format, args...)
}

// ErrorCtx prepends a request ID from ctx, if present, to an unconditional error log.
// The rebalance controller uses the formatted variant, ErrorfCtx, to report
// a downgraded sub-operation failure together with the segment id per the
// error propagation policy.
func ErrorCtx(ctx context.Context, args ...interface{}) {
	if metaTag := formatMetaTag(ctx); metaTag != "" {
		args = append([]interface{}{metaTag}, args...)
	}
	logging.print(errorLog, args...)
}

// ErrorfCtx is the formatted variant of ErrorCtx.
func ErrorfCtx(ctx context.Context, format string, args ...interface{}) {
	if metaTag := formatMetaTag(ctx); metaTag != "" {
		format = metaTag + " " + format
	}
	logging.printf(errorLog, format, args...)
}
